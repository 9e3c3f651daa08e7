package tokenstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

// DiskStore is a file-backed [Store], one file per entry under a base
// directory.
type DiskStore struct {
	mu sync.Mutex
	kv *diskv.Diskv
}

// NewDiskStore opens (creating on first write) a store rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{
		kv: diskv.New(diskv.Options{
			BasePath:     dir,
			TempDir:      filepath.Join(dir, ".tmp"),
			CacheSizeMax: 4 << 10,
			PathPerm:     0o700,
			FilePerm:     0o600,
		}),
	}
}

func (s *DiskStore) Load(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	access, err := s.read(AccessTokenKey)
	if err != nil {
		return Credentials{}, err
	}
	refresh, err := s.read(RefreshTokenKey)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *DiskStore) Save(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if creds.AccessToken == "" {
		if err := s.erase(AccessTokenKey); err != nil {
			return err
		}
	} else if err := s.kv.Write(AccessTokenKey, []byte(creds.AccessToken)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if creds.RefreshToken != "" {
		if err := s.kv.Write(RefreshTokenKey, []byte(creds.RefreshToken)); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *DiskStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.erase(AccessTokenKey); err != nil {
		return err
	}
	return s.erase(RefreshTokenKey)
}

func (s *DiskStore) read(key string) (string, error) {
	if !s.kv.Has(key) {
		return "", nil
	}
	val, err := s.kv.Read(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return string(val), nil
}

func (s *DiskStore) erase(key string) error {
	if !s.kv.Has(key) {
		return nil
	}
	if err := s.kv.Erase(key); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
