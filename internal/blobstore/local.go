package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local is a filesystem-backed BlobStore: bucket is a directory name under
// root, path is joined beneath it. Grounded on the teacher's
// pkg/setup.ExportKeys/LoadKeys file-path construction (filepath.Join,
// "<circuitName>_verifier.key" naming) generalized from a single local
// directory to a bucket-rooted tree.
type Local struct {
	root string
}

// NewLocal constructs a Local blob store rooted at dir, creating it if absent.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %q: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) resolve(bucket, path string) string {
	return filepath.Join(l.root, bucket, filepath.FromSlash(path))
}

func (l *Local) Download(bucket, path string) (string, error) {
	src := l.resolve(bucket, path)
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("blobstore: download %s/%s: %w", bucket, path, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp("", "ceremony-blob-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, in); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blobstore: copy %s/%s: %w", bucket, path, err)
	}
	return tmp.Name(), nil
}

func (l *Local) Upload(bucket, path, localPath string) error {
	dst := l.resolve(bucket, path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("blobstore: create parent dir for %s/%s: %w", bucket, path, err)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("blobstore: open local file %q: %w", localPath, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("blobstore: create %s/%s: %w", bucket, path, err)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (l *Local) Open(bucket, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.resolve(bucket, path))
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s/%s: %w", bucket, path, err)
	}
	return f, nil
}

func (l *Local) Delete(bucket, path string) error {
	err := os.Remove(l.resolve(bucket, path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s/%s: %w", bucket, path, err)
	}
	return nil
}
