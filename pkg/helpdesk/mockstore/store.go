// Package mockstore is the in-process database behind the Mock execution
// strategy. It keeps one table per resource kind, each mapping a serial
// identity to a flat record of raw wire values.
//
// Every primitive runs under a single store-wide lock, so operations are
// linearizable relative to each other within one process. Records are copied
// on the way in and on the way out: callers never hold a reference to a
// stored map.
package mockstore

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/openkcm/common-sdk/pkg/pointers"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const (
	IDField        = "id"
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"

	DefaultPerPage = 100
	MaxPerPage     = 100
)

// Record is a flat bag of raw field values.
type Record = map[string]any

// Filter selects records. A nil Filter matches everything.
type Filter func(Record) bool

type table struct {
	records map[int64]Record
	order   []int64
	serial  int64
}

func newTable() *table {
	return &table{records: make(map[int64]Record)}
}

// Store is the simulated database.
type Store struct {
	mu      sync.Mutex
	tables  map[string]*table
	baseURL string
	now     func() time.Time
	logger  hclog.Logger
}

type Option func(*Store)

// WithBaseURL sets the prefix of the URLs the store renders, such as paging
// cursors and record urls.
func WithBaseURL(baseURL string) Option {
	return func(s *Store) {
		s.baseURL = baseURL
	}
}

// WithClock replaces the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tables:  make(map[string]*table),
		baseURL: "https://mock.zendesk.com/api/v2",
		now:     time.Now,
		logger:  hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// URL renders path against the store base URL.
func (s *Store) URL(path string) string {
	return s.baseURL + path
}

// Timestamp returns the current store time in wire format.
func (s *Store) Timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// NextID reserves the next serial identity of kind.
func (s *Store) NextID(kind string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)
	t.serial++

	return t.serial
}

// Insert stores a record under a freshly assigned identity and stamps
// created_at and updated_at. Any id in the record is ignored.
func (s *Store) Insert(kind string, record Record) (Record, error) {
	rec, err := normalize(record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)
	t.serial++

	return s.put(kind, t, t.serial, rec), nil
}

// InsertWithID stores a record under an identity obtained from NextID.
func (s *Store) InsertWithID(kind string, id int64, record Record) (Record, error) {
	rec, err := normalize(record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)
	if _, exists := t.records[id]; exists {
		return nil, &ConflictError{Kind: kind, ID: id}
	}

	if id > t.serial {
		t.serial = id
	}

	return s.put(kind, t, id, rec), nil
}

func (s *Store) put(kind string, t *table, id int64, rec Record) Record {
	now := s.Timestamp()

	rec[IDField] = id
	if _, ok := rec[CreatedAtField]; !ok {
		rec[CreatedAtField] = now
	}

	rec[UpdatedAtField] = now

	t.records[id] = rec
	t.order = append(t.order, id)

	s.logger.Trace("mock store insert", "kind", kind, "id", id)

	return clone(rec)
}

// Fetch returns a copy of the record of kind with the given identity.
func (s *Store) Fetch(kind string, id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table(kind).records[id]
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}

	return clone(rec), nil
}

// Update merges partial into the stored record and bumps updated_at. The
// identity and created_at cannot be changed. The record is replaced as a
// whole, so a failing update leaves it untouched.
func (s *Store) Update(kind string, id int64, partial Record) (Record, error) {
	patch, err := normalize(partial)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)

	current, ok := t.records[id]
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}

	next := clone(current)
	for k, v := range patch {
		if k == IDField || k == CreatedAtField {
			continue
		}

		next[k] = v
	}

	next[UpdatedAtField] = s.Timestamp()
	t.records[id] = next

	s.logger.Trace("mock store update", "kind", kind, "id", id)

	return clone(next), nil
}

// Delete removes the record and returns its last state.
func (s *Store) Delete(kind string, id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)

	rec, ok := t.records[id]
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}

	delete(t.records, id)

	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	s.logger.Trace("mock store delete", "kind", kind, "id", id)

	return rec, nil
}

// Select returns copies of the records of kind matching filter, in
// insertion order.
func (s *Store) Select(kind string, filter Filter) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selectLocked(kind, filter)
}

func (s *Store) selectLocked(kind string, filter Filter) []Record {
	t := s.table(kind)
	out := make([]Record, 0, len(t.order))

	for _, id := range t.order {
		rec := t.records[id]
		if filter == nil || filter(rec) {
			out = append(out, clone(rec))
		}
	}

	return out
}

// Count returns the number of records of kind.
func (s *Store) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.table(kind).records)
}

// PageRequest selects one page of a listing. Path is the listing path used
// to render cursor URLs; Query carries extra parameters preserved in them.
type PageRequest struct {
	Path    string
	Page    int
	PerPage int
	Query   url.Values
}

// PageResult is one page of records plus the cursor fields of the
// listing envelope.
type PageResult struct {
	Records      []Record
	Count        int
	NextPage     *string
	PreviousPage *string
}

// Page filters the records of kind and slices out one page. Page numbers are
// 1-based; per_page defaults to DefaultPerPage and is capped at MaxPerPage.
// An empty selection is a valid, zero-count page.
func (s *Store) Page(kind string, req PageRequest, filter Filter) PageResult {
	page := req.Page
	if page < 1 {
		page = 1
	}

	perPage := req.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	s.mu.Lock()
	all := s.selectLocked(kind, filter)
	s.mu.Unlock()

	total := len(all)

	// Pages past the end are empty; bound before multiplying so huge pages
	// cannot overflow.
	start := total
	if page-1 <= total/perPage {
		start = min((page-1)*perPage, total)
	}

	end := start + perPage
	if end > total {
		end = total
	}

	result := PageResult{
		Records: all[start:end],
		Count:   total,
	}

	if end < total {
		result.NextPage = s.cursor(req, page+1, perPage)
	}

	if page > 1 {
		result.PreviousPage = s.cursor(req, page-1, perPage)
	}

	return result
}

func (s *Store) cursor(req PageRequest, page, perPage int) *string {
	q := url.Values{}
	for k, v := range req.Query {
		q[k] = append([]string(nil), v...)
	}

	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	return pointers.To(s.URL(req.Path) + "?" + q.Encode())
}

// Reset drops every table and identity counter.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[string]*table)
}

// Snapshot returns every table as ordered record lists.
func (s *Store) Snapshot() map[string][]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]Record, len(s.tables))
	for kind := range s.tables {
		out[kind] = s.selectLocked(kind, nil)
	}

	return out
}

// LoadSnapshot replaces the store content. Records keep the identity they
// carry; records without one are assigned the next serial.
func (s *Store) LoadSnapshot(snapshot map[string][]Record) error {
	tables := make(map[string]*table, len(snapshot))

	for kind, records := range snapshot {
		t := newTable()

		for _, record := range records {
			rec, err := normalize(record)
			if err != nil {
				return err
			}

			id, ok := ToID(rec[IDField])
			if !ok {
				id = t.serial + 1
			}

			if _, dup := t.records[id]; dup {
				return &ConflictError{Kind: kind, ID: id}
			}

			if id > t.serial {
				t.serial = id
			}

			rec[IDField] = id
			t.records[id] = rec
			t.order = append(t.order, id)
		}

		tables[kind] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = tables

	return nil
}

func (s *Store) table(kind string) *table {
	t, ok := s.tables[kind]
	if !ok {
		t = newTable()
		s.tables[kind] = t
	}

	return t
}

// normalize turns an arbitrary Go value bag into plain JSON values: nested
// maps, []any, strings, bools and json.Number.
func normalize(record Record) (Record, error) {
	if record == nil {
		return Record{}, nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, errs.Wrap(ErrInvalidRecord, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	out := Record{}
	if err := dec.Decode(&out); err != nil {
		return nil, errs.Wrap(ErrInvalidRecord, err)
	}

	if id, ok := ToID(out[IDField]); ok {
		out[IDField] = id
	}

	return out, nil
}

func clone(v Record) Record {
	out := make(Record, len(v))
	for k, e := range v {
		out[k] = cloneValue(e)
	}

	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return clone(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}

		return out
	default:
		return v
	}
}
