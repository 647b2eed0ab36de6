package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidKey  = errors.New("artifact key is empty")
	ErrNilArtifact = errors.New("artifact is nil")
)

const defaultKeyPrefix = "chative:artifact:"

// Artifact is a document persisted by a tool on behalf of a worker.
type Artifact struct {
	Key       string    `json:"key"`
	RunID     string    `json:"run_id"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable storage contract. Put overwrites by key so repeated
// writes of the same logical artifact are safe.
type Store interface {
	Put(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, key string) (*Artifact, error)
}

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Key derives the caller-visible identifier for a run-scoped artifact.
// Case and punctuation are folded into the slug. A title with no letters or
// digits is keyed by a digest of its raw text instead.
func Key(runID, title string) string {
	title = strings.TrimSpace(title)
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		sum := sha256.Sum256([]byte(title))
		slug = "untitled-" + hex.EncodeToString(sum[:4])
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = "adhoc"
	}
	return runID + "/" + slug
}

func validate(a *Artifact) error {
	if a == nil {
		return ErrNilArtifact
	}
	if strings.TrimSpace(a.Key) == "" {
		return ErrInvalidKey
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	} else {
		a.UpdatedAt = a.UpdatedAt.UTC()
	}
	return nil
}

func encode(a *Artifact) (string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	return string(payload), nil
}

func decode(raw string) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return &a, nil
}

// MemoryStore keeps artifacts for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Artifact)}
}

func (m *MemoryStore) Put(_ context.Context, a *Artifact) error {
	if err := validate(a); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.Key] = *a
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
