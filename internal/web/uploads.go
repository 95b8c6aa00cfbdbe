package web

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sammcj/fileqa/internal/extract"
)

// ErrInvalidName is returned for upload names with no usable base name
var ErrInvalidName = errors.New("invalid file name")

// StoredFile is an uploaded file kept on disk for the lifetime of the process
type StoredFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
	path       string
}

// UploadStore keeps uploads in a private directory under uuid-prefixed names
type UploadStore struct {
	dir string

	mu    sync.Mutex
	files []StoredFile
}

// NewUploadStore creates a temporary upload directory under parent (or the system temp dir)
func NewUploadStore(parent string) (*UploadStore, error) {
	dir, err := os.MkdirTemp(parent, "fileqa-uploads-")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Save copies r to disk under name and records it
func (s *UploadStore) Save(name string, r io.Reader) (StoredFile, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return StoredFile{}, ErrInvalidName
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+"-"+name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	size, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return StoredFile{}, fmt.Errorf("failed to write upload: %w", copyErr)
		}
		return StoredFile{}, fmt.Errorf("failed to write upload: %w", closeErr)
	}

	stored := StoredFile{
		ID:         id,
		Name:       name,
		Kind:       extract.KindOf(name).String(),
		Size:       size,
		UploadedAt: time.Now().UTC(),
		path:       path,
	}

	s.mu.Lock()
	s.files = append(s.files, stored)
	s.mu.Unlock()

	return stored, nil
}

// List returns the stored files in upload order
func (s *UploadStore) List() []StoredFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredFile{}, s.files...)
}

// Uploaded returns the stored files as extraction inputs, keeping the original names
func (s *UploadStore) Uploaded() []extract.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]extract.UploadedFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, extract.UploadedFile{Name: f.Name, Path: f.path})
	}
	return files
}

// Remove deletes the files with the given ids; unknown ids are ignored
func (s *UploadStore) Remove(ids ...string) error {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	kept := s.files[:0]
	for _, f := range s.files {
		if !remove[f.ID] {
			kept = append(kept, f)
			continue
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	s.files = kept
	return firstErr
}

// Clear deletes every stored file and returns how many there were
func (s *UploadStore) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, f := range s.files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	count := len(s.files)
	s.files = nil
	return count, firstErr
}

// Close removes the upload directory
func (s *UploadStore) Close() error {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
	return os.RemoveAll(s.dir)
}
