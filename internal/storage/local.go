package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge      = errors.New("file exceeds the maximum upload size")
	ErrInvalidFolder = errors.New("invalid storage folder")
)

// Object is a stored file and the public URL it is served from.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Storage persists uploaded attachments and medical documents.
type Storage interface {
	Save(ctx context.Context, folder, originalName string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// LocalStorage writes files under a directory that the HTTP server exposes
// at PublicBaseURL.
type LocalStorage struct {
	root     string
	baseURL  string
	maxBytes int64
}

func NewLocalStorage(root, publicBaseURL string, maxUploadMB int) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{
		root:     root,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		maxBytes: int64(maxUploadMB) << 20,
	}, nil
}

// MaxBytes is the largest accepted upload.
func (s *LocalStorage) MaxBytes() int64 {
	return s.maxBytes
}

// Save stores r under folder with a generated name that keeps the original
// extension. Folder segments are caller-supplied ids, never user paths.
func (s *LocalStorage) Save(ctx context.Context, folder, originalName string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	folder = path.Clean("/" + folder)[1:]
	if folder == "" || strings.Contains(folder, "..") {
		return Object{}, ErrInvalidFolder
	}

	key := path.Join(folder, uuid.NewString()+extension(originalName))
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Object{}, fmt.Errorf("create folder: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return Object{}, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return Object{}, err
		}
		return Object{}, fmt.Errorf("write file: %w", err)
	}

	return Object{Key: key, URL: s.baseURL + "/" + key, Size: n}, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	key = path.Clean("/" + key)[1:]
	if key == "" {
		return ErrInvalidFolder
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func extension(name string) string {
	ext := strings.ToLower(path.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}
