package docstore

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrClosed       = errors.New("store closed")
)

type Table string

const (
	TableLiveDocs  Table = "live_docs"
	TableOverrides Table = "overrides"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Key struct {
	Slug   string `json:"slug"`
	Locale string `json:"locale"`
}

type Row struct {
	Slug      string          `json:"slug"`
	Locale    string          `json:"locale"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Notification struct {
	Table  Table  `json:"table"`
	Op     Op     `json:"op"`
	Slug   string `json:"slug"`
	Locale string `json:"locale"`
	Row    *Row   `json:"row,omitempty"`
}

type Logger interface {
	Printf(format string, args ...any)
}

type StoreOptions struct {
	StateBackend    StateBackend
	Logger          Logger
	SubscribeBuffer int
	Now             func() time.Time
}

type subscription struct {
	table  Table
	locale string
	ch     chan Notification
}

type Store struct {
	mu      sync.RWMutex
	tables  map[Table]map[Key]Row
	subs    map[int]*subscription
	nextSub int
	backend StateBackend
	logger  Logger
	buffer  int
	now     func() time.Time
	closed  bool
}

type persistedState struct {
	Tables map[Table][]Row `json:"tables"`
}

type StateBackend interface {
	Load() (*persistedState, error)
	Save(state *persistedState) error
}

type stateBackendCloser interface {
	Close() error
}

func NewStore(opts StoreOptions) *Store {
	buffer := opts.SubscribeBuffer
	if buffer <= 0 {
		buffer = 64
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Store{
		tables: map[Table]map[Key]Row{
			TableLiveDocs:  {},
			TableOverrides: {},
		},
		subs:    map[int]*subscription{},
		backend: opts.StateBackend,
		logger:  opts.Logger,
		buffer:  buffer,
		now:     now,
	}
	if err := s.loadFromBackend(); err != nil {
		s.logf("state backend load failed: %v", err)
	}
	return s
}

func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if closer, ok := s.backend.(stateBackendCloser); ok && closer != nil {
		_ = closer.Close()
	}
}

func (s *Store) Get(table Table, slug, locale string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return Row{}, ErrInvalidInput
	}
	row, ok := rows[Key{Slug: slug, Locale: locale}]
	if !ok {
		return Row{}, ErrNotFound
	}
	return copyRow(row), nil
}

// List returns the rows of a table filtered by locale (empty locale means
// all), ordered by slug then locale for deterministic output.
func (s *Store) List(table Table, locale string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, ErrInvalidInput
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if locale != "" && row.Locale != locale {
			continue
		}
		out = append(out, copyRow(row))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slug != out[j].Slug {
			return out[i].Slug < out[j].Slug
		}
		return out[i].Locale < out[j].Locale
	})
	return out, nil
}

func (s *Store) Upsert(table Table, slug, locale string, data json.RawMessage) (Row, error) {
	if slug == "" || locale == "" || len(data) == 0 {
		return Row{}, ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Row{}, ErrClosed
	}
	rows, ok := s.tables[table]
	if !ok {
		s.mu.Unlock()
		return Row{}, ErrInvalidInput
	}
	key := Key{Slug: slug, Locale: locale}
	_, exists := rows[key]
	row := Row{
		Slug:      slug,
		Locale:    locale,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: s.now(),
	}
	rows[key] = row
	op := OpInsert
	if exists {
		op = OpUpdate
	}
	s.saveLocked()
	notified := copyRow(row)
	s.notifyLocked(Notification{Table: table, Op: op, Slug: slug, Locale: locale, Row: &notified})
	s.mu.Unlock()
	return copyRow(row), nil
}

func (s *Store) Delete(table Table, slug, locale string) error {
	if slug == "" || locale == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	rows, ok := s.tables[table]
	if !ok {
		s.mu.Unlock()
		return ErrInvalidInput
	}
	key := Key{Slug: slug, Locale: locale}
	if _, exists := rows[key]; !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(rows, key)
	s.saveLocked()
	s.notifyLocked(Notification{Table: table, Op: OpDelete, Slug: slug, Locale: locale})
	s.mu.Unlock()
	return nil
}

// Subscribe registers a change listener for one logical table, optionally
// filtered by locale. The returned cancel func is idempotent. A subscriber
// that stops draining its channel loses notifications rather than blocking
// writers.
func (s *Store) Subscribe(table Table, locale string) (<-chan Notification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Notification, s.buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{table: table, locale: locale, ch: ch}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub.ch)
			}
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Store) notifyLocked(n Notification) {
	for _, sub := range s.subs {
		if sub.table != n.Table {
			continue
		}
		if sub.locale != "" && sub.locale != n.Locale {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			s.logf("dropping notification for slow subscriber table=%s slug=%s", n.Table, n.Slug)
		}
	}
}

func (s *Store) saveLocked() {
	if s.backend == nil {
		return
	}
	state := &persistedState{Tables: map[Table][]Row{}}
	for table, rows := range s.tables {
		list := make([]Row, 0, len(rows))
		for _, row := range rows {
			list = append(list, copyRow(row))
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Slug != list[j].Slug {
				return list[i].Slug < list[j].Slug
			}
			return list[i].Locale < list[j].Locale
		})
		state.Tables[table] = list
	}
	if err := s.backend.Save(state); err != nil {
		s.logf("state backend save failed: %v", err)
	}
}

func (s *Store) loadFromBackend() error {
	if s.backend == nil {
		return nil
	}
	state, err := s.backend.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	for table, rows := range state.Tables {
		dst, ok := s.tables[table]
		if !ok {
			dst = map[Key]Row{}
			s.tables[table] = dst
		}
		for _, row := range rows {
			dst[Key{Slug: row.Slug, Locale: row.Locale}] = copyRow(row)
		}
	}
	return nil
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func copyRow(row Row) Row {
	out := row
	out.Data = append(json.RawMessage(nil), row.Data...)
	return out
}
