package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sri-invoice-subscription/internal/domain/model"
)

// ErrNoSnapshot is returned by a Store that has never been written.
var ErrNoSnapshot = errors.New("no ledger snapshot stored")

// Snapshot is the last ledger the server handed out. It is display state
// only; nothing reads it to decide whether a download is allowed.
type Snapshot struct {
	Ledger     model.LedgerSnapshot `json:"ledger"`
	ServerTime time.Time            `json:"serverTime"`
	PulledAt   time.Time            `json:"pulledAt"`
}

// Age is how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.PulledAt) }

type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
}

type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, ErrNoSnapshot
	}
	cp := *m.snap
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.snap = &cp
	return nil
}

// FileStore keeps the snapshot as a JSON document. Writes go to a temp file
// in the same directory and are renamed over the target.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Load(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return &s, nil
}

func (f *FileStore) Save(_ context.Context, s *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// LedgerSource is the server side of the mirror; *Client satisfies it.
type LedgerSource interface {
	Ledger(ctx context.Context) (*LedgerView, error)
}

// Mirror pulls the authoritative ledger and caches it locally. A pull
// always overwrites the cache, so the server wins every conflict.
type Mirror struct {
	src   LedgerSource
	store Store
	now   func() time.Time
}

func NewMirror(src LedgerSource, store Store) *Mirror {
	return &Mirror{src: src, store: store, now: time.Now}
}

func (m *Mirror) Pull(ctx context.Context) (*Snapshot, error) {
	v, err := m.src.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{Ledger: v.Ledger, ServerTime: v.ServerTime, PulledAt: m.now().UTC()}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return s, nil
}

// Cached returns the stored snapshot without contacting the server.
func (m *Mirror) Cached(ctx context.Context) (*Snapshot, error) {
	return m.store.Load(ctx)
}

// Observe records a ledger the server returned as a side effect of another
// call (authorize, download, settle) so the cache never lags behind it.
func (m *Mirror) Observe(ctx context.Context, l model.LedgerSnapshot) error {
	now := m.now().UTC()
	return m.store.Save(ctx, &Snapshot{Ledger: l, ServerTime: now, PulledAt: now})
}
