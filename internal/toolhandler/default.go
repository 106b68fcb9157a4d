package toolhandler

import (
	"github.com/nextlevelbuilder/convoke/internal/classify"
	"github.com/nextlevelbuilder/convoke/internal/execsvc"
)

// NewDefaultRegistry builds the catalog an agent orchestrator offers a
// completion provider: the always-present built-in shell tool plus the
// stock external tools.
func NewDefaultRegistry(workspace string) *Registry {
	r := NewRegistry()
	r.Register(NewShellHandler(classify.New(), execsvc.New(), workspace))
	r.Register(NewFileReadHandler(workspace))
	r.Register(NewFileWriteHandler(workspace))
	r.Register(NewWebFetchHandler())
	return r
}
