package journal

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"

	"eventtrader/pkg/conn"

	"github.com/goccy/go-json"
	"github.com/yanun0323/errors"
)

// Store persists a batch of entries.
type Store interface {
	Save(ctx context.Context, entries []Entry) error
}

// GormStore writes entries to PostgreSQL.
type GormStore struct {
	client    *conn.Client
	batchSize int
}

// NewGormStore migrates the journal table and returns a store on it.
func NewGormStore(ctx context.Context, client *conn.Client) (*GormStore, error) {
	if err := client.Migrate(ctx, &Entry{}); err != nil {
		return nil, errors.Wrap(err, "migrate journal")
	}
	return &GormStore{client: client, batchSize: 100}, nil
}

func (s *GormStore) Save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.client.DB().WithContext(ctx).CreateInBatches(entries, s.batchSize).Error; err != nil {
		return errors.Wrapf(err, "insert %d journal entries", len(entries))
	}
	return nil
}

// FileStore appends entries as JSON lines.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create journal dir %s", dir)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open journal %s", s.path)
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			_ = f.Close()
			return errors.Wrap(err, "encode journal entry")
		}
	}
	if err := buf.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flush journal")
	}
	return f.Close()
}

// ReadFile loads every entry of a JSON lines journal.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	defer f.Close()

	var out []Entry
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return out, errors.Wrapf(err, "decode journal entry %d", len(out)+1)
		}
		out = append(out, e)
	}
	return out, nil
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *MemoryStore) Save(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}
