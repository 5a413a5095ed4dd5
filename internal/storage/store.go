package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akabaki/saas-ui/internal/models"
)

// ErrNotFound is returned for unknown artifact ids.
var ErrNotFound = errors.New("artifact not found")

// metaSuffix names the metadata file written next to each artifact.
const metaSuffix = ".meta.json"

// Store defines the interface for converted artifact storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(name string, data []byte) (*models.FileInfo, error)
	ReadBytes(id string) ([]byte, error)
	Open(id string) (io.ReadCloser, *models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem.
// Artifacts are written under their id with a <id>.meta.json file holding
// their metadata; the in-memory index is rebuilt from the directory on open.
type LocalStore struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore and indexes the artifacts already in dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	s := &LocalStore{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadIndex registers every artifact file in the directory. Metadata files
// whose artifact is gone are removed; artifacts without metadata are indexed
// under their id with the file's modification time.
func (s *LocalStore) loadIndex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading artifact directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		id := e.Name()
		fi, err := e.Info()
		if err != nil {
			continue
		}

		info := &models.FileInfo{
			ID:          id,
			Name:        id,
			Size:        fi.Size(),
			ContentType: ContentTypeOf(id),
			CreatedAt:   fi.ModTime(),
		}
		if meta, err := os.ReadFile(s.metaPath(id)); err == nil {
			var stored models.FileInfo
			if json.Unmarshal(meta, &stored) == nil && stored.ID == id {
				info = &stored
			}
		}
		s.files[id] = info
	}

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		if _, ok := s.files[strings.TrimSuffix(e.Name(), metaSuffix)]; !ok {
			os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}

	if len(s.files) > 0 {
		fmt.Printf("[Storage] Indexed %d existing artifact(s) in %s\n", len(s.files), s.dir)
	}
	return nil
}

func (s *LocalStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

func (s *LocalStore) writeMeta(info *models.FileInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(info.ID), data, 0644)
}

// Save writes r to a new artifact.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        size,
		ContentType: ContentTypeOf(name),
		CreatedAt:   time.Now(),
	}
	if err := s.writeMeta(info); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// SaveBytes writes data to a new artifact.
func (s *LocalStore) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	return s.Save(name, bytes.NewReader(data))
}

// ReadBytes returns the full content of an artifact.
func (s *LocalStore) ReadBytes(id string) ([]byte, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Open returns a reader over an artifact and its metadata.
func (s *LocalStore) Open(id string) (io.ReadCloser, *models.FileInfo, error) {
	info, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	return f, info, nil
}

// Get retrieves artifact metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	cp := *info
	return &cp, nil
}

// List returns the most recent artifacts. A limit <= 0 returns all of them.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}

	// Sort by CreatedAt desc
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes an artifact from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	os.Remove(s.metaPath(id))

	delete(s.files, id)
	return nil
}

// Prune deletes every artifact created before cutoff and returns how many were removed.
func (s *LocalStore) Prune(cutoff time.Time) (int, error) {
	s.mu.RLock()
	var expired []string
	for id, info := range s.files {
		if info.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if err := s.Delete(id); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// GetFilePath returns the path to an artifact on disk.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.dir, id), nil
}

// ContentTypeOf guesses an artifact's MIME type from its name.
func ContentTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}
