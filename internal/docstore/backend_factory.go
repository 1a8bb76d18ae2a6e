package docstore

import (
	"fmt"
	"strings"
	"sync"
)

type StateBackendFactory func(dsn string) (StateBackend, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]StateBackendFactory
}{
	factories: map[string]StateBackendFactory{},
}

func RegisterStateBackendFactory(scheme string, factory StateBackendFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupStateBackendFactory(scheme string) (StateBackendFactory, bool) {
	scheme = normalizeScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

// OpenStateBackend resolves a DSN to a backend: postgres:// and
// postgresql:// select the Postgres backend, file:// and bare paths select
// the JSON file backend, and an empty DSN means no persistence.
func OpenStateBackend(dsn string) (StateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	scheme := ""
	if idx := strings.Index(dsn, "://"); idx >= 0 {
		scheme = dsn[:idx]
	}
	if factory, ok := lookupStateBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch normalizeScheme(scheme) {
	case "postgres", "postgresql":
		return NewPostgresStateBackend(dsn)
	case "file":
		return NewJSONFileStateBackend(strings.TrimPrefix(dsn, "file://")), nil
	case "":
		return NewJSONFileStateBackend(dsn), nil
	default:
		return nil, fmt.Errorf("%w: unsupported state backend scheme %q", ErrInvalidInput, scheme)
	}
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
