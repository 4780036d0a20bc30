package api

import (
	"log/slog"
	"sort"
	"sync"

	"specproof/internal/counterexample"
	"specproof/internal/dsl"
	"specproof/internal/runs"
	"specproof/internal/verify"
)

// Registry — загруженные спецификации. Заменяется целиком при reload.
type Registry struct {
	mu    sync.RWMutex
	root  string
	specs map[string]*dsl.Specification
}

func NewRegistry(root string, specs map[string]*dsl.Specification) *Registry {
	if specs == nil {
		specs = map[string]*dsl.Specification{}
	}
	return &Registry{root: root, specs: specs}
}

func (r *Registry) Root() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// Get ищет спецификацию по имени (см. NormalizeSpecName).
func (r *Registry) Get(name string) (*dsl.Specification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.normalizeLocked(name)
	if !ok {
		return nil, false
	}
	return r.specs[key], true
}

// List сортирует по имени.
func (r *Registry) List() []*dsl.Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*dsl.Specification, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Swap атомарно подменяет набор спецификаций.
func (r *Registry) Swap(root string, specs map[string]*dsl.Specification) {
	r.mu.Lock()
	r.root = root
	r.specs = specs
	r.mu.Unlock()
}

// Service собирает зависимости обработчиков.
type Service struct {
	Specs    *Registry
	Verifier *verify.Verifier
	Finder   *counterexample.Finder
	Runs     runs.Store
	IDs      *runs.IDs
	Logger   *slog.Logger
}

func NewService(specs *Registry, v *verify.Verifier, f *counterexample.Finder, store runs.Store, logger *slog.Logger) *Service {
	if store == nil {
		store = runs.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Specs: specs, Verifier: v, Finder: f, Runs: store, IDs: runs.NewIDs(), Logger: logger}
}
