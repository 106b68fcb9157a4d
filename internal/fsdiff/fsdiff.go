// Package fsdiff implements the filesystem-change detector: snapshot a
// directory tree, then diff a later state against it to find
// created/modified files. A fixed ignore set skips VCS metadata,
// dependency caches, build outputs, and env files; skipped or
// unreadable paths are logged, never fatal.
package fsdiff

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// ignoreDirs skips VCS metadata, dependency caches, and build outputs.
var ignoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// ignoreFiles skips environment files and OS metadata by exact basename.
var ignoreFiles = map[string]bool{
	".env":       true,
	".DS_Store":  true,
	"Thumbs.db":  true,
}

// ChangeType is the closed set of diff outcomes.
type ChangeType string

const (
	Created  ChangeType = "created"
	Modified ChangeType = "modified"
)

// Change describes one file that differs between a snapshot and the
// current directory state.
type Change struct {
	Path         string
	RelativePath string
	Content      string
	ChangeType   ChangeType
}

// FileStat is the recorded state of one file at snapshot time.
type FileStat struct {
	ModTime time.Time
	Size    int64
}

// Snapshot maps absolute file path -> (mtime, size) for every non-ignored
// file under dir, walked up to maxDepth levels deep (0 = unlimited).
type Snapshot struct {
	Root  string
	Files map[string]FileStat
}

// Take walks dir (skipping the fixed ignore set) recording mtime and
// size for every regular file, up to maxDepth directory levels below
// root. maxDepth <= 0 means unlimited.
func Take(dir string, maxDepth int, logger *slog.Logger) (*Snapshot, error) {
	snap := &Snapshot{Root: dir, Files: make(map[string]FileStat)}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if logger != nil {
				logger.Warn("fsdiff: skipping unreadable path", "path", path, "error", err)
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			if maxDepth > 0 && depthBelow(dir, path) > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipFile(d.Name()) {
			return nil
		}
		if maxDepth > 0 && depthBelow(dir, path) > maxDepth {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if logger != nil {
				logger.Warn("fsdiff: skipping unreadable file", "path", path, "error", err)
			}
			return nil
		}
		snap.Files[path] = FileStat{ModTime: info.ModTime(), Size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Diff compares before against the current state of dir and returns
// every file that is new or whose mtime/size changed, reading each
// changed file as text. Unreadable or non-UTF8 (binary) files are
// skipped.
func Diff(before *Snapshot, dir string, maxDepth int, logger *slog.Logger) ([]Change, error) {
	after, err := Take(dir, maxDepth, logger)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for path, stat := range after.Files {
		prior, existed := before.Files[path]
		if existed && prior.ModTime.Equal(stat.ModTime) && prior.Size == stat.Size {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			if logger != nil {
				logger.Warn("fsdiff: skipping unreadable changed file", "path", path, "error", err)
			}
			continue
		}
		if !utf8.Valid(content) {
			if logger != nil {
				logger.Debug("fsdiff: skipping binary file", "path", path)
			}
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		changeType := Modified
		if !existed {
			changeType = Created
		}
		changes = append(changes, Change{
			Path:         path,
			RelativePath: rel,
			Content:      string(content),
			ChangeType:   changeType,
		})
	}
	return changes, nil
}

func shouldSkipDir(name string) bool {
	return ignoreDirs[name]
}

func shouldSkipFile(name string) bool {
	if ignoreFiles[name] {
		return true
	}
	return strings.HasSuffix(name, ".env")
}

func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	if rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
