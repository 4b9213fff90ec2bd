// Package jsonfile stores posts and user state as JSON files in a
// directory. Every save rewrites the whole file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/storage"
)

const (
	postsFile = "posts.json"
	usersFile = "users.json"
)

// Store is a storage.Store backed by files in one directory.
type Store struct {
	mu  sync.RWMutex
	dir string
}

var _ storage.Store = (*Store)(nil)

// Open creates the directory if needed and returns a store over it.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads both files. Missing files yield an empty snapshot.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap storage.Snapshot
	records := map[string]storage.Record{}
	if err := s.read(postsFile, &records); err != nil {
		return snap, err
	}
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		r := records[id]
		r.ID = id
		snap.Posts = append(snap.Posts, r.Post())
	}
	if err := s.read(usersFile, &snap.Users); err != nil {
		return snap, err
	}
	return snap, nil
}

// SavePosts rewrites posts.json, keyed by post id.
func (s *Store) SavePosts(ctx context.Context, posts []*post.Post) error {
	records := make(map[string]storage.Record, len(posts))
	for _, p := range posts {
		records[p.ID] = storage.NewRecord(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(postsFile, records)
}

// SaveUsers rewrites users.json.
func (s *Store) SaveUsers(ctx context.Context, users storage.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(usersFile, users)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write replaces name atomically via a temp file and rename.
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
