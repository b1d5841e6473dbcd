package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Summary is a lightweight view of a persisted session, used for
// listings without loading full history bodies.
type Summary struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	PromptPreview string    `json:"prompt_preview"`
	Iterations    int       `json:"iterations"`
}

// Store is the durable home of sessions. It is the single source of
// truth across process restarts; writes are last-writer-wins at file
// granularity.
type Store interface {
	// Create allocates a fresh session and persists it immediately.
	Create(initialPrompt, goalQuery string) (*Session, error)

	// Load returns the full session for the given id.
	Load(id string) (*Session, error)

	// Save overwrites the persisted representation. Idempotent and
	// atomic with respect to process crashes.
	Save(s *Session) error

	// List returns summaries of all persisted sessions.
	List() ([]Summary, error)
}

// FileStore persists one JSON file per session under a root directory.
type FileStore struct {
	root string
}

// Open creates a FileStore rooted at the given directory, creating it
// if needed.
func Open(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &PersistenceError{Op: "create store directory", Err: err}
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's directory.
func (fs *FileStore) Root() string {
	return fs.root
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.root, id+".json")
}

// Create allocates a fresh session and persists it immediately.
func (fs *FileStore) Create(initialPrompt, goalQuery string) (*Session, error) {
	s, err := New(uuid.NewString(), initialPrompt, goalQuery)
	if err != nil {
		return nil, err
	}

	if err := fs.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the full session for the given id.
func (fs *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, &PersistenceError{Op: "read session", Err: err}
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &PersistenceError{Op: "parse session", Err: err}
	}
	if s.History == nil {
		s.History = []Iteration{}
	}

	return &s, nil
}

// Save overwrites the persisted representation. The write goes to a
// temp file first and is renamed into place, so a session file is
// never observed half-written.
func (fs *FileStore) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "marshal session", Err: err}
	}

	final := fs.path(s.ID)
	tmp, err := os.CreateTemp(fs.root, s.ID+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create temp file", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write session", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "close temp file", Err: err}
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename session", Err: err}
	}

	return nil
}

// summaryProbe decodes only the fields List needs. History entries stay
// as raw JSON so iteration bodies are never materialized.
type summaryProbe struct {
	ID            string            `json:"id"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	CurrentPrompt string            `json:"current_prompt"`
	History       []json.RawMessage `json:"history"`
}

// List returns summaries of all persisted sessions, newest first.
func (fs *FileStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, &PersistenceError{Op: "read store directory", Err: err}
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(fs.root, name))
		if err != nil {
			continue // File may have been removed between list and read
		}

		var probe summaryProbe
		if err := json.Unmarshal(data, &probe); err != nil {
			continue // Skip files that are not session records
		}
		if probe.ID == "" {
			continue
		}

		summaries = append(summaries, Summary{
			ID:            probe.ID,
			Status:        probe.Status,
			CreatedAt:     probe.CreatedAt,
			PromptPreview: preview(probe.CurrentPrompt, 50),
			Iterations:    len(probe.History),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// MemoryStore implements Store with in-memory storage. It deep-copies
// on the way in and out, so callers cannot mutate the stored record
// without an explicit Save.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create allocates a fresh session.
func (ms *MemoryStore) Create(initialPrompt, goalQuery string) (*Session, error) {
	s, err := New(uuid.NewString(), initialPrompt, goalQuery)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	ms.sessions[s.ID] = s.Clone()
	ms.mu.Unlock()

	return s, nil
}

// Load returns the session for the given id.
func (ms *MemoryStore) Load(id string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s, ok := ms.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s.Clone(), nil
}

// Save stores a copy of the session.
func (ms *MemoryStore) Save(s *Session) error {
	if s.ID == "" {
		return &PersistenceError{Op: "save session", Err: fmt.Errorf("empty session id")}
	}

	ms.mu.Lock()
	ms.sessions[s.ID] = s.Clone()
	ms.mu.Unlock()
	return nil
}

// List returns summaries of all stored sessions, newest first.
func (ms *MemoryStore) List() ([]Summary, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	summaries := make([]Summary, 0, len(ms.sessions))
	for _, s := range ms.sessions {
		summaries = append(summaries, Summary{
			ID:            s.ID,
			Status:        s.Status,
			CreatedAt:     s.CreatedAt,
			PromptPreview: s.PromptPreview(50),
			Iterations:    len(s.History),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}
