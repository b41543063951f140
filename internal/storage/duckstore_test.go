// duckstore_test.go - Tests for the DuckDB-backed marker store
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marker-map/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func createTestStore(t *testing.T, now func() time.Time) *DuckStore {
	t.Helper()
	store, err := NewDuckStore(context.Background(), Options{
		Path:    filepath.Join(t.TempDir(), "markers.duckdb"),
		Threads: 2,
		Now:     now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func draftAt(lat, lng float64, content string) models.Draft {
	return models.Draft{Position: models.Position{Lat: lat, Lng: lng}, Content: content}
}

func TestDuckStore_CreateAndList(t *testing.T) {
	store := createTestStore(t, nil)
	ctx := context.Background()

	before := time.Now().UTC().Truncate(time.Microsecond)
	created, err := store.Create(ctx, draftAt(45.0, -122.0, "hello"))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.Before(before), "createdAt %v before %v", created.CreatedAt, before)
	assert.Equal(t, "hello", created.Content)

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 1)

	got := markers[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.Position{Lat: 45.0, Lng: -122.0}, got.Position)
	assert.Equal(t, "hello", got.Content)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt), "want %v, got %v", created.CreatedAt, got.CreatedAt)
}

func TestDuckStore_ListEmpty(t *testing.T) {
	store := createTestStore(t, nil)

	markers, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, markers)
	assert.Empty(t, markers)
}

func TestDuckStore_DuplicatePosition(t *testing.T) {
	store := createTestStore(t, nil)
	ctx := context.Background()

	_, err := store.Create(ctx, draftAt(10.0, 20.0, "first"))
	require.NoError(t, err)

	_, err = store.Create(ctx, draftAt(10.0, 20.0, "second"))
	require.Error(t, err)

	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, models.Position{Lat: 10.0, Lng: 20.0}, dupErr.Position)
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "first", markers[0].Content)
}

func TestDuckStore_SameLatitudeDifferentLongitude(t *testing.T) {
	store := createTestStore(t, nil)
	ctx := context.Background()

	_, err := store.Create(ctx, draftAt(10.0, 20.0, "a"))
	require.NoError(t, err)
	_, err = store.Create(ctx, draftAt(10.0, 20.5, "b"))
	require.NoError(t, err)
	_, err = store.Create(ctx, draftAt(10.5, 20.0, "c"))
	require.NoError(t, err)

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, 3)
}

func TestDuckStore_ListOrdering(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	store := createTestStore(t, clock.Now)
	ctx := context.Background()

	m1, err := store.Create(ctx, draftAt(1, 1, "t1"))
	require.NoError(t, err)
	m2, err := store.Create(ctx, draftAt(2, 2, "t2"))
	require.NoError(t, err)
	m3, err := store.Create(ctx, draftAt(3, 3, "t3"))
	require.NoError(t, err)

	require.True(t, m1.CreatedAt.Before(m2.CreatedAt))
	require.True(t, m2.CreatedAt.Before(m3.CreatedAt))

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 3)
	assert.Equal(t, []string{m3.ID, m2.ID, m1.ID}, []string{markers[0].ID, markers[1].ID, markers[2].ID})
}

func TestDuckStore_ListOrderingSameTimestamp(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	store := createTestStore(t, func() time.Time { return fixed })
	ctx := context.Background()

	first, err := store.Create(ctx, draftAt(1, 1, "first"))
	require.NoError(t, err)
	second, err := store.Create(ctx, draftAt(2, 2, "second"))
	require.NoError(t, err)

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, second.ID, markers[0].ID)
	assert.Equal(t, first.ID, markers[1].ID)
}

func TestDuckStore_ConcurrentCreateSamePosition(t *testing.T) {
	store := createTestStore(t, nil)
	ctx := context.Background()

	const attempts = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
		others     []error
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Create(ctx, draftAt(1.0, 1.0, "race"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicateKey):
				duplicates++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)

	markers, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, 1)
}

func TestDuckStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "markers.duckdb")
	ctx := context.Background()

	store, err := NewDuckStore(ctx, Options{Path: path})
	require.NoError(t, err)
	created, err := store.Create(ctx, draftAt(48.8584, 2.2945, "tower"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewDuckStore(ctx, Options{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	markers, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, created.ID, markers[0].ID)

	_, err = reopened.Create(ctx, draftAt(48.8584, 2.2945, "again"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestDuckStore_InMemory(t *testing.T) {
	store, err := NewDuckStore(context.Background(), Options{})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Create(context.Background(), draftAt(0, 0, "null island"))
	require.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestDuckStore_ClosedStoreErrors(t *testing.T) {
	store, err := NewDuckStore(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	var storeErr *StoreError

	_, err = store.ListAll(ctx)
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "list markers", storeErr.Op)

	_, err = store.Create(ctx, draftAt(5, 5, "x"))
	require.ErrorAs(t, err, &storeErr)
	assert.False(t, errors.Is(err, ErrDuplicateKey))

	assert.ErrorAs(t, store.Ping(ctx), &storeErr)
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate position", errors.New(`Constraint Error: Duplicate key "lat: 10.0, lng: 20.0" violates unique constraint.`), true},
		{"losing commit", errors.New(`TransactionContext Error: Failed to commit: PRIMARY KEY or UNIQUE constraint violated: duplicate key "lat: 1.0, lng: 1.0"`), true},
		{"not null", errors.New(`Constraint Error: NOT NULL constraint failed: markers.lat`), false},
		{"check", errors.New(`Constraint Error: CHECK constraint failed: markers`), false},
		{"id collision", errors.New(`Constraint Error: Duplicate key "id: 7f1c" violates primary key constraint.`), false},
		{"io", errors.New(`IO Error: Could not write file`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestDuckStore_NotNullViolationIsNotDuplicate(t *testing.T) {
	store := createTestStore(t, nil)

	_, err := store.db.ExecContext(context.Background(),
		`INSERT INTO markers (id, lat, lng, content, created_at) VALUES ('x', NULL, 1, 'c', now())`)
	require.Error(t, err)
	assert.False(t, isUniqueViolation(err), err.Error())
}
