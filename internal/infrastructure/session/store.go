// Package session persists per-session decision history as one JSON file
// per session id.
package session

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

var (
	// ErrInvalidSessionID reports an identifier that failed validation.
	// Nothing is read or written for such ids.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrCorruptSession reports a session file that exists but does not
	// parse. The storage fault is surfaced, never silently recreated.
	ErrCorruptSession = errors.New("corrupt session file")
)

// Store keeps a bounded in-memory cache over per-session JSON files.
//
// Concurrency model: every session id owns a mutex that serializes all work
// on that session. Cache misses additionally take a store-wide load lock
// with a double-check, so a stampede of first accesses loads each file once.
// When the cache evicts a session, its mutex stays registered for a grace
// period so goroutines still holding it unlock safely.
type Store struct {
	dir        string
	maxHistory int
	cacheSize  int
	log        ports.Logger

	loadMu sync.Mutex

	mu    sync.Mutex
	cache map[string]*list.Element
	lru   *list.List
	locks map[string]*sync.Mutex
}

var _ ports.SessionStore = (*Store)(nil)

type cacheEntry struct {
	id     string
	record *domain.SessionRecord
}

// NewStore builds a Store rooted at dir, creating the directory if needed.
func NewStore(dir string, settings domain.SessionSettings, log ports.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{
		dir:        dir,
		maxHistory: settings.GetMaxHistory(),
		cacheSize:  settings.GetCacheSize(),
		log:        log,
		cache:      make(map[string]*list.Element),
		lru:        list.New(),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// GetOrCreate implements ports.SessionStore.
func (s *Store) GetOrCreate(id string) (*domain.SessionRecord, error) {
	if err := domain.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	return s.loadLocked(id)
}

// Append implements ports.SessionStore.
func (s *Store) Append(id string, event domain.SessionEvent) error {
	if err := domain.ValidateSessionID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.loadLocked(id)
	if err != nil {
		return err
	}

	if len(event.Reasoning) > domain.MaxReasoningLength {
		event.Reasoning = event.Reasoning[:domain.MaxReasoningLength]
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	record.History = append(record.History, event)
	record.Trim(s.maxHistory)
	record.LastActivity = event.Timestamp

	return s.persist(record)
}

// BuildContext implements ports.SessionStore. It renders the newest
// maxEvents events, oldest first, as plain lines for the judge prompt.
// The rendering happens under the session lock, so a concurrent Append
// cannot mutate the history slice mid-read.
func (s *Store) BuildContext(id string, maxEvents int) (string, error) {
	if err := domain.ValidateSessionID(id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.loadLocked(id)
	if err != nil {
		return "", err
	}

	history := record.History
	if maxEvents > 0 && len(history) > maxEvents {
		history = history[len(history)-maxEvents:]
	}
	if len(history) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, ev := range history {
		fmt.Fprintf(&b, "[%s] %s", ev.Timestamp.Format(domain.TimestampFormat), ev.Type)
		if ev.ToolName != "" {
			fmt.Fprintf(&b, " tool=%s", ev.ToolName)
		}
		if ev.Decision != "" {
			fmt.Fprintf(&b, " decision=%s score=%d", ev.Decision, ev.Score)
		}
		if ev.Reasoning != "" {
			fmt.Fprintf(&b, " (%s)", ev.Reasoning)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ClearAll implements ports.SessionStore.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.cache = make(map[string]*list.Element)
	s.lru = list.New()
	s.locks = make(map[string]*sync.Mutex)
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove session file: %w", err)
		}
	}
	return nil
}

// lockFor returns the mutex owning id, registering one on first use.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// loadLocked returns the cached record for id, loading or creating it on a
// miss. The caller must hold the session lock.
func (s *Store) loadLocked(id string) (*domain.SessionRecord, error) {
	if record := s.cached(id); record != nil {
		return record, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	// Another loader may have won the race while we waited.
	if record := s.cached(id); record != nil {
		return record, nil
	}

	record, err := s.readFile(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		now := time.Now().UTC()
		record = &domain.SessionRecord{ID: id, CreatedAt: now, LastActivity: now}
		if err := s.persist(record); err != nil {
			return nil, err
		}
	}

	s.insert(record)
	return record, nil
}

func (s *Store) cached(id string) *domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.cache[id]
	if !ok {
		return nil
	}
	s.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).record
}

// insert adds a record to the cache, evicting the least recently used
// session when over capacity. The evicted session's lock is released from
// the registry after a grace period.
func (s *Store) insert(record *domain.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[record.ID] = s.lru.PushFront(&cacheEntry{id: record.ID, record: record})

	for len(s.cache) > s.cacheSize {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry).id
		s.lru.Remove(oldest)
		delete(s.cache, evicted)

		time.AfterFunc(domain.LockReleaseDelay, func() {
			s.mu.Lock()
			delete(s.locks, evicted)
			s.mu.Unlock()
		})
	}
}

// readFile loads a session file. A missing file returns (nil, nil).
func (s *Store) readFile(id string) (*domain.SessionRecord, error) {
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, id, err)
	}
	if record.ID == "" {
		record.ID = id
	}
	return &record, nil
}

// persist rewrites the whole session file. Writes go through a temp file
// and rename so a crash never leaves a half-written record.
func (s *Store) persist(record *domain.SessionRecord) error {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", record.ID, err)
	}

	target := s.path(record.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, domain.SecureFilePermissions); err != nil {
		return fmt.Errorf("write session %s: %w", record.ID, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("store session %s: %w", record.ID, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
