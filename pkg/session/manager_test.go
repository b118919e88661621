package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"portfolio-chat/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestInit_GeneratesAndPersists(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := NewManager(s, nil, nil)

	id, err := m.Init(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	stored, found, err := s.Get(ctx, store.KeySessionID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, stored)
}

func TestInit_ReusesStoredIDVerbatim(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, store.KeySessionID, "not-a-uuid"))

	m := NewManager(s, nil, nil)
	id, err := m.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, "not-a-uuid", id)
}

func TestGetSessionID_LazyInit(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), nil, nil, WithIDGenerator(func() string { return "fixed" }))

	id, err := m.GetSessionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := NewManager(s, nil, nil)

	original, err := m.Init(ctx)
	require.NoError(t, err)

	first, err := m.ResetSession(ctx)
	require.NoError(t, err)
	second, err := m.ResetSession(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, original, first)
	assert.NotEqual(t, first, second)

	current, err := m.GetSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, current)

	stored, _, _ := s.Get(ctx, store.KeySessionID)
	assert.Equal(t, second, stored)
}

func TestSessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := store.NewFileStore(path)
	require.NoError(t, err)
	id, err := NewManager(first, nil, nil).Init(ctx)
	require.NoError(t, err)

	second, err := store.NewFileStore(path)
	require.NoError(t, err)
	again, err := NewManager(second, nil, nil).Init(ctx)
	require.NoError(t, err)

	assert.Equal(t, id, again)
}

func TestConcurrentAccessSeesOneID(t *testing.T) {
	ctx := context.Background()
	m := NewManager(store.NewMemoryStore(), nil, nil)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = m.GetSessionID(ctx)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		pinger  Pinger
		healthy bool
		errText string
	}{
		{
			name:    "healthy",
			pinger:  pingFunc(func(ctx context.Context) error { return nil }),
			healthy: true,
		},
		{
			name:    "failing",
			pinger:  pingFunc(func(ctx context.Context) error { return errors.New("status 503") }),
			errText: "status 503",
		},
		{
			name:    "no pinger",
			pinger:  nil,
			errText: "no health endpoint configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(store.NewMemoryStore(), tt.pinger, nil)
			res := m.CheckHealth(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.errText, res.Error)
		})
	}
}

func TestCheckHealth_Timeout(t *testing.T) {
	slow := pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m := NewManager(store.NewMemoryStore(), slow, nil, WithHealthTimeout(10*time.Millisecond))

	start := time.Now()
	res := m.CheckHealth(context.Background())

	assert.False(t, res.Healthy)
	assert.Less(t, time.Since(start), time.Second)
}
