package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

// Storage keeps objects on local disk, one directory per bucket. It backs
// development setups and tests; presigned URLs are not available.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) path(loc domain.ObjectLocator) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("incomplete locator %q", loc))
	}
	root := filepath.Join(s.basePath, filepath.Clean("/"+loc.Bucket))
	path := filepath.Join(root, filepath.Clean("/"+loc.Key))
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("key escapes bucket: %q", loc.Key))
	}
	return path, nil
}

func (s *Storage) Put(_ context.Context, loc domain.ObjectLocator, body io.Reader, _ int64, _ string) error {
	path, err := s.path(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, loc domain.ObjectLocator) (io.ReadCloser, error) {
	path, err := s.path(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrObjectNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, loc domain.ObjectLocator) error {
	path, err := s.path(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Storage) PresignGet(_ context.Context, loc domain.ObjectLocator, _ time.Duration) (string, error) {
	return "", domain.WrapError(domain.ErrUnsupported, "presign object", fmt.Errorf("local storage cannot sign %s", loc))
}
