package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specproof/internal/verify"
)

func TestIDs_Monotonic(t *testing.T) {
	ids := NewIDs()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	prev := ids.New(at)
	for i := 0; i < 100; i++ {
		next := ids.New(at)
		require.Greater(t, next, prev, "same millisecond must still sort forward")
		prev = next
	}
	assert.Len(t, prev, 26)
}

func TestMemoryStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	run := NewRun(NewIDs(), "WalletSystem", "1.2.0", verify.Result{IsConsistent: true, IsComplete: true})

	require.NoError(t, s.Save(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "WalletSystem", got.Spec)
	assert.Equal(t, "1.2.0", got.Version)
	assert.True(t, got.Result.IsConsistent)

	// копия, а не ссылка на внутреннее состояние
	got.Spec = "changed"
	again, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "WalletSystem", again.Spec)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveRequiresID(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Save(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), &Run{Spec: "x"}))
}

func TestMemoryStore_ListBySpec(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := NewIDs()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var want []string
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		r := &Run{ID: ids.New(at), Spec: "A", CreatedAt: at}
		require.NoError(t, s.Save(ctx, r))
		want = append([]string{r.ID}, want...)
	}
	require.NoError(t, s.Save(ctx, &Run{ID: ids.New(base), Spec: "B"}))

	all, err := s.ListBySpec(ctx, "A", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, r := range all {
		assert.Equal(t, want[i], r.ID, "newest first")
	}

	limited, err := s.ListBySpec(ctx, "A", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, want[:2], []string{limited[0].ID, limited[1].ID})

	none, err := s.ListBySpec(ctx, "Missing", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
