package store

import "fmt"

// Open constructs a Store for the given backend. "memory" is always
// available and is the config default.
func Open(backend, postgresDSN, sqlitePath string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if postgresDSN == "" {
			return nil, fmt.Errorf("store: postgres backend selected but no DSN configured")
		}
		return OpenPostgresStore(postgresDSN)
	case "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("store: sqlite backend selected but no path configured")
		}
		return OpenSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
