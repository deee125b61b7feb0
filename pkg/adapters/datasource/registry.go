package datasource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// AdapterInfo describes a registered engine adapter.
type AdapterInfo struct {
	Type        string   `json:"type"`         // "postgres", "mysql", "mssql", "sqlite"
	DisplayName string   `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Schemes     []string `json:"schemes"`      // URL schemes handled by the adapter
}

// EngineFactory opens an engine for a connection URL.
// name identifies the engine; it is the db_id the URL is bound to.
type EngineFactory func(ctx context.Context, name, rawURL string, opts PoolOptions) (orm.Engine, error)

// AdapterRegistration contains info + factory for an engine adapter.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory EngineFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration) // key: URL scheme
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, scheme := range reg.Info.Schemes {
		registry[scheme] = reg
	}
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		if seen[reg.Info.Type] {
			continue
		}
		seen[reg.Info.Type] = true
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a URL scheme.
// Returns nil if the scheme is not registered.
func GetFactory(scheme string) EngineFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[scheme]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a URL scheme is available.
func IsRegistered(scheme string) bool {
	return GetFactory(scheme) != nil
}

// Scheme extracts the scheme of a connection URL ("postgres://..." -> "postgres").
func Scheme(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Avoid echoing the URL, it may hold a password.
		return "", fmt.Errorf("invalid database URL")
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("database URL has no scheme")
	}
	return strings.ToLower(u.Scheme), nil
}

// Open creates an engine for rawURL using the adapter registered for its scheme.
func Open(ctx context.Context, name, rawURL string, opts PoolOptions) (orm.Engine, error) {
	scheme, err := Scheme(rawURL)
	if err != nil {
		return nil, err
	}
	factory := GetFactory(scheme)
	if factory == nil {
		return nil, fmt.Errorf("unsupported database type: %s (not compiled in)", scheme)
	}
	return factory(ctx, name, rawURL, opts.WithDefaults())
}
