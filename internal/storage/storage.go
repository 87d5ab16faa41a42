package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store keeps the bytes of uploaded supporting documents. Names are chosen
// by the caller and are never reused.
type Store interface {
	Save(ctx context.Context, name string, src io.Reader) (int64, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
	Ping(ctx context.Context) error
}

type LocalStore struct {
	validator *PathValidator
}

func New(root string) (*LocalStore, error) {
	validator, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(validator.RootAbs(), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &LocalStore{validator: validator}, nil
}

func (s *LocalStore) RootAbs() string {
	return s.validator.RootAbs()
}

// Save writes to a temporary file next to the destination and renames it
// into place, so a partially written document is never visible under name.
func (s *LocalStore) Save(ctx context.Context, name string, src io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resolved, err := s.validator.ResolveName(name)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return 0, fmt.Errorf("create shard directory: %w", err)
	}

	if _, err := os.Stat(resolved); err == nil {
		return 0, fmt.Errorf("save %q: %w", name, os.ErrExist)
	}

	tmp, err := os.CreateTemp(filepath.Dir(resolved), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, contextReader{ctx: ctx, r: src})
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write %q: %w", name, errors.Join(copyErr, closeErr))
	}

	if err := os.Rename(tmpName, resolved); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("commit %q: %w", name, err)
	}

	return written, nil
}

func (s *LocalStore) Open(name string) (io.ReadCloser, error) {
	resolved, err := s.validator.ResolveName(name)
	if err != nil {
		return nil, err
	}

	return os.Open(resolved)
}

// Remove is idempotent: a missing file is not an error.
func (s *LocalStore) Remove(name string) error {
	resolved, err := s.validator.ResolveName(name)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", name, err)
	}

	return nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(s.validator.RootAbs())
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", s.validator.RootAbs())
	}

	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
