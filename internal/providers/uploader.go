package providers

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

const WasmContentType = "application/wasm"

type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

type localUploader struct {
	rootDir string
}

func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

// UploadBytes writes data under the root directory and returns a file:// URL.
// The object is written to a temporary name first so readers never observe a
// partial file.
func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(u.rootDir, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + filepath.ToSlash(abs), nil
}

// CodeArchive keeps a copy of every verified binary keyed by its code hash.
type CodeArchive struct {
	up Uploader
}

func NewCodeArchive(up Uploader) *CodeArchive {
	return &CodeArchive{up: up}
}

func CodeObjectPath(hash domain.CodeHash) string {
	return path.Join("code", hash.String()+".wasm")
}

func (a *CodeArchive) Store(ctx context.Context, hash domain.CodeHash, code []byte) (string, error) {
	if a == nil || a.up == nil {
		return "", nil
	}
	if len(hash) == 0 {
		return "", fmt.Errorf("archive code: empty hash")
	}
	url, err := a.up.UploadBytes(ctx, CodeObjectPath(hash), WasmContentType, code)
	if err != nil {
		return "", fmt.Errorf("archive code %s: %w", hash, err)
	}
	return url, nil
}
