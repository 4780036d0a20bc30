// Package runs хранит историю запусков верификации.
package runs

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"specproof/internal/verify"
)

var ErrNotFound = errors.New("run not found")

type Run struct {
	ID        string        `json:"id"`
	Spec      string        `json:"spec"`
	Version   string        `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Result    verify.Result `json:"result"`
}

type Store interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// ListBySpec — последние запуски спецификации, новые первыми.
	ListBySpec(ctx context.Context, spec string, limit int) ([]Run, error)
}

// IDs выдаёт монотонные ULID.
type IDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewIDs() *IDs {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &IDs{entropy: ulid.Monotonic(src, 0)}
}

func (g *IDs) New(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}

// NewRun заполняет ID и время создания.
func NewRun(ids *IDs, spec, version string, res verify.Result) *Run {
	now := time.Now().UTC()
	return &Run{ID: ids.New(now), Spec: spec, Version: version, CreatedAt: now, Result: res}
}

// MemoryStore — хранилище по умолчанию, когда БД не настроена.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Run{}}
}

func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[run.ID] = *run
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListBySpec(_ context.Context, spec string, limit int) ([]Run, error) {
	s.mu.RLock()
	out := make([]Run, 0)
	for _, r := range s.byID {
		if r.Spec == spec {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	// ULID сортируется лексикографически по времени
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
