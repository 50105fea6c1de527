package cmdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Store is the CMDB Core: an in-memory key->object map backed by a
// durable sqlite store. Writes update the map
// synchronously and mark the key dirty for the next auto-save flush;
// reads never touch the database. A per-key mutex serialises
// read-modify-write operations (set/merge) on the same key without
// blocking concurrent writers to other keys.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	data    map[string]CI
	dirty   map[string]bool
	keyMu   sync.Map // key -> *sync.Mutex

	autoSaveEnabled  bool
	autoSaveInterval time.Duration
	stopCh           chan struct{}
	doneCh           chan struct{}
}

// Options configures auto-save behavior, sourced from the
// MEMORY_AUTO_SAVE / MEMORY_AUTO_SAVE_INTERVAL environment variables.
type Options struct {
	AutoSaveEnabled  bool
	AutoSaveInterval time.Duration
}

// Open opens (creating if necessary) the sqlite database at path and
// rehydrates the in-memory map from it before returning, so the first
// request never observes a partially-loaded store.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cmdb: opening store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ci_store (
		ci_key TEXT PRIMARY KEY,
		ci_data TEXT NOT NULL,
		ci_type TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cmdb: creating schema: %w", err)
	}

	if opts.AutoSaveInterval == 0 {
		opts.AutoSaveInterval = 30 * time.Second
	}

	s := &Store{
		db:               db,
		data:             make(map[string]CI),
		dirty:            make(map[string]bool),
		autoSaveEnabled:  opts.AutoSaveEnabled,
		autoSaveInterval: opts.AutoSaveInterval,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}

	if err := s.rehydrate(); err != nil {
		db.Close()
		return nil, err
	}

	if s.autoSaveEnabled {
		go s.autoSaveLoop()
	} else {
		close(s.doneCh)
	}

	return s, nil
}

func (s *Store) rehydrate() error {
	rows, err := s.db.Query(`SELECT ci_key, ci_data, ci_type, updated_at FROM ci_store`)
	if err != nil {
		return fmt.Errorf("cmdb: rehydrating: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var key, rawData, typeHint string
		var updatedAt time.Time
		if err := rows.Scan(&key, &rawData, &typeHint, &updatedAt); err != nil {
			return fmt.Errorf("cmdb: rehydrating row: %w", err)
		}
		var value map[string]interface{}
		if err := json.Unmarshal([]byte(rawData), &value); err != nil {
			logging.Warn("CMDB", "skipping unreadable row %s: %v", key, err)
			continue
		}
		s.data[key] = CI{Key: key, Value: value, TypeHint: TypeHint(typeHint), UpdatedAt: updatedAt}
	}
	return rows.Err()
}

func (s *Store) lockFor(key string) *sync.Mutex {
	v, _ := s.keyMu.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Get returns the stored value for key.
func (s *Store) Get(key string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return cloneMap(ci.Value), true
}

// Set overwrites key's value, last-write-wins.
func (s *Store) Set(key string, value map[string]interface{}) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ci := CI{Key: key, Value: cloneMap(value), TypeHint: classify(value), UpdatedAt: time.Now()}

	s.mu.Lock()
	s.data[key] = ci
	s.dirty[key] = true
	s.mu.Unlock()
}

// Merge shallow-merges partial into the existing value for key,
// partial winning on key collisions, and returns the merged result.
// A key with no existing value behaves as an empty-map Set.
func (s *Store) Merge(key string, partial map[string]interface{}) map[string]interface{} {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	existing, ok := s.data[key]
	s.mu.Unlock()

	merged := map[string]interface{}{}
	if ok {
		for k, v := range existing.Value {
			merged[k] = v
		}
	}
	for k, v := range partial {
		merged[k] = v
	}

	ci := CI{Key: key, Value: merged, TypeHint: classify(merged), UpdatedAt: time.Now()}
	s.mu.Lock()
	s.data[key] = ci
	s.dirty[key] = true
	s.mu.Unlock()

	return cloneMap(merged)
}

// Query returns every CI whose key matches glob. glob uses '*' as "any
// characters" with no other metacharacters recognised; an empty glob
// matches everything.
func (s *Store) Query(glob string) (map[string]map[string]interface{}, error) {
	var matcher *regexp.Regexp
	if glob != "" {
		var err error
		matcher, err = globToRegexp(glob)
		if err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]interface{})
	for key, ci := range s.data {
		if matcher == nil || matcher.MatchString(key) {
			out[key] = cloneMap(ci.Value)
		}
	}
	return out, nil
}

func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		if r == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGlob, err)
	}
	return re, nil
}

// Clear removes every CI from the in-memory map and the durable store.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.data = make(map[string]CI)
	s.dirty = make(map[string]bool)
	s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM ci_store`)
	return err
}

// Stats reports the current CI count, broken down by type hint, plus
// the number of keys awaiting their next auto-save flush.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{TotalCIs: len(s.data), ByType: make(map[TypeHint]int), Dirty: len(s.dirty)}
	for _, ci := range s.data {
		st.ByType[ci.TypeHint]++
	}
	return st
}

// Save forces an immediate flush of every dirty key to the durable
// store.
func (s *Store) Save() error {
	s.mu.Lock()
	dirtyKeys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		dirtyKeys = append(dirtyKeys, k)
	}
	snapshot := make(map[string]CI, len(dirtyKeys))
	for _, k := range dirtyKeys {
		snapshot[k] = s.data[k]
	}
	s.mu.Unlock()

	if len(dirtyKeys) == 0 {
		return nil
	}

	for _, key := range dirtyKeys {
		ci := snapshot[key]
		raw, err := json.Marshal(ci.Value)
		if err != nil {
			return fmt.Errorf("cmdb: encoding %s: %w", key, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO ci_store (ci_key, ci_data, ci_type, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(ci_key) DO UPDATE SET ci_data = excluded.ci_data, ci_type = excluded.ci_type, updated_at = excluded.updated_at`,
			ci.Key, string(raw), string(ci.TypeHint), ci.UpdatedAt,
		); err != nil {
			return fmt.Errorf("cmdb: persisting %s: %w", key, err)
		}
	}

	s.mu.Lock()
	for _, k := range dirtyKeys {
		delete(s.dirty, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) autoSaveLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.autoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Save(); err != nil {
				logging.Error("CMDB", err, "auto-save flush failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the auto-save loop (if running), flushes any remaining
// dirty keys, and closes the underlying database handle.
func (s *Store) Close(ctx context.Context) error {
	if s.autoSaveEnabled {
		close(s.stopCh)
		select {
		case <-s.doneCh:
		case <-ctx.Done():
		}
	}
	if err := s.Save(); err != nil {
		logging.Error("CMDB", err, "final flush on close failed")
	}
	return s.db.Close()
}

// MigrateFrom imports every row from a sibling sqlite database at path
// into this store, overwriting any colliding keys (last-write-wins,
// matching Set's semantics).
func (s *Store) MigrateFrom(path string) error {
	src, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("cmdb: opening migration source: %w", err)
	}
	defer src.Close()

	rows, err := src.Query(`SELECT ci_key, ci_data FROM ci_store`)
	if err != nil {
		return fmt.Errorf("cmdb: reading migration source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, rawData string
		if err := rows.Scan(&key, &rawData); err != nil {
			return fmt.Errorf("cmdb: reading migration row: %w", err)
		}
		var value map[string]interface{}
		if err := json.Unmarshal([]byte(rawData), &value); err != nil {
			logging.Warn("CMDB", "skipping unreadable migration row %s: %v", key, err)
			continue
		}
		s.Set(key, value)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return s.Save()
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
