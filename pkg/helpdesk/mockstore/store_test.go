package mockstore_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*mockstore.Store, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	return mockstore.New(
		mockstore.WithClock(clock.Now),
		mockstore.WithBaseURL("https://example.zendesk.com/api/v2"),
	), clock
}

func TestInsertAssignsSerialIdentityPerKind(t *testing.T) {
	s, _ := newStore(t)

	first, err := s.Insert("tickets", mockstore.Record{"subject": "a"})
	require.NoError(t, err)
	second, err := s.Insert("tickets", mockstore.Record{"subject": "b", "id": 99})
	require.NoError(t, err)
	group, err := s.Insert("groups", mockstore.Record{"name": "g"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, int64(2), second["id"])
	assert.Equal(t, int64(1), group["id"])
	assert.Equal(t, "2024-01-02T03:04:05Z", first["created_at"])
	assert.Equal(t, first["created_at"], first["updated_at"])
}

func TestIdentitiesNeverReusedAfterDelete(t *testing.T) {
	s, _ := newStore(t)

	rec, err := s.Insert("users", mockstore.Record{"name": "a"})
	require.NoError(t, err)
	_, err = s.Delete("users", rec["id"].(int64))
	require.NoError(t, err)

	next, err := s.Insert("users", mockstore.Record{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next["id"])
}

func TestInsertWithReservedID(t *testing.T) {
	s, _ := newStore(t)

	id := s.NextID("ticket_fields")
	rec, err := s.InsertWithID("ticket_fields", id, mockstore.Record{"url": s.URL("/ticket_fields/1.json")})
	require.NoError(t, err)
	assert.Equal(t, id, rec["id"])

	_, err = s.InsertWithID("ticket_fields", id, mockstore.Record{})
	assert.ErrorIs(t, err, mockstore.ErrConflict)

	next, err := s.Insert("ticket_fields", mockstore.Record{})
	require.NoError(t, err)
	assert.Equal(t, id+1, next["id"])
}

func TestFetchMissing(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Fetch("tickets", 404)
	assert.ErrorIs(t, err, mockstore.ErrNotFound)

	var nf *mockstore.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "tickets", nf.Kind)
	assert.Equal(t, int64(404), nf.ID)
}

func TestUpdateMergesAndBumpsUpdatedAt(t *testing.T) {
	s, clock := newStore(t)

	rec, err := s.Insert("groups", mockstore.Record{"name": "A", "url": "u"})
	require.NoError(t, err)

	id := rec["id"].(int64)

	clock.Advance(time.Minute)

	updated, err := s.Update("groups", id, mockstore.Record{"name": "B", "id": 500, "created_at": "never"})
	require.NoError(t, err)

	assert.Equal(t, "B", updated["name"])
	assert.Equal(t, "u", updated["url"])
	assert.Equal(t, id, updated["id"])
	assert.Equal(t, "2024-01-02T03:04:05Z", updated["created_at"])
	assert.Equal(t, "2024-01-02T03:05:05Z", updated["updated_at"])

	_, err = s.Update("groups", 77, mockstore.Record{"name": "C"})
	assert.ErrorIs(t, err, mockstore.ErrNotFound)
}

func TestUpdateRejectsUnencodableValuesWithoutSideEffects(t *testing.T) {
	s, _ := newStore(t)

	rec, err := s.Insert("groups", mockstore.Record{"name": "A"})
	require.NoError(t, err)

	_, err = s.Update("groups", rec["id"].(int64), mockstore.Record{"name": "B", "bad": make(chan int)})
	require.ErrorIs(t, err, mockstore.ErrInvalidRecord)

	got, err := s.Fetch("groups", rec["id"].(int64))
	require.NoError(t, err)
	assert.Equal(t, "A", got["name"])
}

func TestDeleteIsHard(t *testing.T) {
	s, _ := newStore(t)

	rec, err := s.Insert("tickets", mockstore.Record{"subject": "x"})
	require.NoError(t, err)

	id := rec["id"].(int64)

	deleted, err := s.Delete("tickets", id)
	require.NoError(t, err)
	assert.Equal(t, "x", deleted["subject"])

	_, err = s.Fetch("tickets", id)
	assert.ErrorIs(t, err, mockstore.ErrNotFound)

	_, err = s.Delete("tickets", id)
	assert.ErrorIs(t, err, mockstore.ErrNotFound)
	assert.Equal(t, 0, s.Count("tickets"))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s, _ := newStore(t)

	rec, err := s.Insert("tickets", mockstore.Record{"tags": []string{"a"}})
	require.NoError(t, err)

	rec["subject"] = "mutated"
	rec["tags"].([]any)[0] = "z"

	got, err := s.Fetch("tickets", rec["id"].(int64))
	require.NoError(t, err)
	assert.NotContains(t, got, "subject")
	assert.Equal(t, []any{"a"}, got["tags"])
}

func TestPageWalksAllRecordsInOrder(t *testing.T) {
	s, _ := newStore(t)

	for i := 0; i < 25; i++ {
		_, err := s.Insert("tickets", mockstore.Record{"n": i})
		require.NoError(t, err)
	}

	tests := []struct {
		page     int
		size     int
		hasNext  bool
		hasPrev  bool
		firstID  int64
		nextPage string
	}{
		{page: 1, size: 10, hasNext: true, hasPrev: false, firstID: 1,
			nextPage: "https://example.zendesk.com/api/v2/tickets.json?page=2&per_page=10"},
		{page: 2, size: 10, hasNext: true, hasPrev: true, firstID: 11,
			nextPage: "https://example.zendesk.com/api/v2/tickets.json?page=3&per_page=10"},
		{page: 3, size: 5, hasNext: false, hasPrev: true, firstID: 21},
		{page: 4, size: 0, hasNext: false, hasPrev: true},
	}

	for _, tt := range tests {
		res := s.Page("tickets", mockstore.PageRequest{Path: "/tickets.json", Page: tt.page, PerPage: 10}, nil)

		assert.Equal(t, 25, res.Count)
		assert.Len(t, res.Records, tt.size)
		assert.Equal(t, tt.hasNext, res.NextPage != nil)
		assert.Equal(t, tt.hasPrev, res.PreviousPage != nil)

		if tt.size > 0 {
			assert.Equal(t, tt.firstID, res.Records[0]["id"])
		}

		if tt.nextPage != "" {
			assert.Equal(t, tt.nextPage, *res.NextPage)
		}
	}
}

func TestPageKeepsQueryInCursor(t *testing.T) {
	s, _ := newStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Insert("users", mockstore.Record{"name": "n"})
		require.NoError(t, err)
	}

	res := s.Page("users", mockstore.PageRequest{
		Path:    "/users/search.json",
		PerPage: 2,
		Query:   map[string][]string{"query": {"name:n"}},
	}, nil)

	require.NotNil(t, res.NextPage)
	assert.Equal(t, "https://example.zendesk.com/api/v2/users/search.json?page=2&per_page=2&query=name%3An", *res.NextPage)
}

func TestPageDefaultsAndCaps(t *testing.T) {
	s, _ := newStore(t)

	for i := 0; i < 120; i++ {
		_, err := s.Insert("users", mockstore.Record{})
		require.NoError(t, err)
	}

	res := s.Page("users", mockstore.PageRequest{Path: "/users.json", PerPage: 1000}, nil)
	assert.Len(t, res.Records, mockstore.MaxPerPage)

	res = s.Page("users", mockstore.PageRequest{Path: "/users.json"}, nil)
	assert.Len(t, res.Records, mockstore.DefaultPerPage)

	tests := []struct {
		name string
		page int
	}{
		{name: "just past the end", page: 3},
		{name: "far past the end", page: 1 << 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Page("users", mockstore.PageRequest{Path: "/users.json", Page: tt.page, PerPage: 100}, nil)
			assert.Empty(t, res.Records)
			assert.Equal(t, 120, res.Count)
			assert.Nil(t, res.NextPage)
			assert.NotNil(t, res.PreviousPage)
		})
	}
}

func TestPageWithFilter(t *testing.T) {
	s, _ := newStore(t)

	for _, org := range []any{7, 8, 7, nil, json.Number("7")} {
		_, err := s.Insert("tickets", mockstore.Record{"organization_id": org})
		require.NoError(t, err)
	}

	res := s.Page("tickets", mockstore.PageRequest{Path: "/organizations/7/tickets.json"},
		mockstore.FieldEquals("organization_id", int64(7)))
	assert.Equal(t, 3, res.Count)

	for _, rec := range res.Records {
		assert.True(t, mockstore.Equal(rec["organization_id"], 7))
	}

	empty := s.Page("tickets", mockstore.PageRequest{Path: "/organizations/9/tickets.json"},
		mockstore.FieldEquals("organization_id", 9))
	assert.Equal(t, 0, empty.Count)
	assert.Empty(t, empty.Records)
	assert.Nil(t, empty.NextPage)
	assert.Nil(t, empty.PreviousPage)
}

func TestWhere(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Insert("tickets", mockstore.Record{"organization_id": 7, "status": "open"})
	require.NoError(t, err)
	_, err = s.Insert("tickets", mockstore.Record{"organization_id": 7, "status": "closed"})
	require.NoError(t, err)
	_, err = s.Insert("tickets", mockstore.Record{"status": "open"})
	require.NoError(t, err)

	filter, err := mockstore.Where(`organization_id == 7 && status != "closed"`)
	require.NoError(t, err)

	got := s.Select("tickets", filter)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0]["id"])

	_, err = mockstore.Where(`organization_id ==`)
	assert.ErrorIs(t, err, mockstore.ErrInvalidFilter)
}

func TestConcurrentInsertsGetDistinctIdentities(t *testing.T) {
	s, _ := newStore(t)

	const workers = 16

	ids := make(chan int64, workers*10)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 10; i++ {
				rec, err := s.Insert("tickets", mockstore.Record{})
				assert.NoError(t, err)

				ids <- rec["id"].(int64)
			}
		}()
	}

	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "identity %d assigned twice", id)
		seen[id] = true
	}

	assert.Len(t, seen, workers*10)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Insert("groups", mockstore.Record{"name": "A"})
	require.NoError(t, err)
	_, err = s.Insert("groups", mockstore.Record{"name": "B"})
	require.NoError(t, err)

	snap := s.Snapshot()

	other, _ := newStore(t)
	require.NoError(t, other.LoadSnapshot(snap))

	assert.Equal(t, 2, other.Count("groups"))

	next, err := other.Insert("groups", mockstore.Record{"name": "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), next["id"])

	s.Reset()
	assert.Equal(t, 0, s.Count("groups"))
}
