// mock_storage.go - In-memory MarkerStore for handler tests
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marker-map/backend/internal/models"
	"github.com/marker-map/backend/internal/storage"
)

// MockStore implements storage.MarkerStore in memory. Positions are claimed
// under the same lock as the insert, mirroring the database constraint.
type MockStore struct {
	mu          sync.Mutex
	markers     []*models.Marker
	byPosition  map[models.Position]struct{}
	nextID      int
	CreateCalls int
	ListCalls   int

	// CreateErr and ListErr, when set, are returned instead of touching data.
	CreateErr error
	ListErr   error
	PingErr   error
	Now       func() time.Time
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		byPosition: make(map[models.Position]struct{}),
		Now:        time.Now,
	}
}

func (m *MockStore) Create(ctx context.Context, draft models.Draft) (*models.Marker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, exists := m.byPosition[draft.Position]; exists {
		return nil, &storage.DuplicateKeyError{Position: draft.Position}
	}

	m.nextID++
	marker := &models.Marker{
		ID:        fmt.Sprintf("marker-%d", m.nextID),
		Position:  draft.Position,
		Content:   draft.Content,
		CreatedAt: m.Now().UTC(),
	}
	m.byPosition[draft.Position] = struct{}{}
	m.markers = append(m.markers, marker)
	return marker, nil
}

func (m *MockStore) ListAll(ctx context.Context) ([]*models.Marker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	list := make([]*models.Marker, len(m.markers))
	for i := range m.markers {
		// newest insert first, then stable sort by time
		list[i] = m.markers[len(m.markers)-1-i]
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockStore) Close() error {
	return nil
}

// Calls returns the number of Create and ListAll invocations so far.
func (m *MockStore) Calls() (creates, lists int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls, m.ListCalls
}

var _ storage.MarkerStore = (*MockStore)(nil)
