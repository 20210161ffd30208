package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// BlobStore holds uploaded document bytes by key
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Size(ctx context.Context, key string) (int64, error)
}

const uploadPrefix = "uploads/"

var storageKeyRe = regexp.MustCompile(`^uploads/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\.pdf$`)

// StorageKeyFor returns the blob key of a document
func StorageKeyFor(documentID string) string {
	return uploadPrefix + documentID + ".pdf"
}

// ParseStorageKey extracts the document id from a key of the form
// uploads/{uuid}.pdf
func ParseStorageKey(key string) (string, error) {
	m := storageKeyRe.FindStringSubmatch(strings.TrimPrefix(key, "/"))
	if m == nil {
		return "", apperrors.Validation("parse_storage_key", "malformed storage key: "+key)
	}
	id, err := uuid.Parse(m[1])
	if err != nil {
		return "", apperrors.Validation("parse_storage_key", "malformed document id in key: "+key)
	}
	return id.String(), nil
}

// FileBlobStore stores blobs as files under a root directory
type FileBlobStore struct {
	root string
}

var _ BlobStore = (*FileBlobStore)(nil)

// NewFileBlobStore creates the root directory if needed
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &FileBlobStore{root: root}, nil
}

// Put writes the blob atomically: readers never observe a partial file
func (s *FileBlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	const op = "blob_put"

	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, transientError(op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return 0, transientError(op, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, transientError(op, err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		return 0, transientError(op, err)
	}
	return n, nil
}

// Fetch reads a whole blob
func (s *FileBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("blob_fetch", "blob not found: "+key)
	}
	if err != nil {
		return nil, transientError("blob_fetch", err)
	}
	return data, nil
}

// Size returns the blob length in bytes
func (s *FileBlobStore) Size(ctx context.Context, key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, apperrors.NotFound("blob_size", "blob not found: "+key)
	}
	if err != nil {
		return 0, transientError("blob_size", err)
	}
	return info.Size(), nil
}

func (s *FileBlobStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", apperrors.Validation("blob_key", "invalid key: "+key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

func transientError(op string, err error) error {
	return apperrors.New(apperrors.ErrTransient, op, "", err)
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
