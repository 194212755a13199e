// Package archive moves processed import files to their archive or error
// location, on the local disk or in an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
)

// Archiver stores a file under name at its target and returns the location
// it was stored at. With keep the source file stays in place.
type Archiver interface {
	Archive(ctx context.Context, src, name string, keep bool) (string, error)
}

// ForPath returns the archiver for target: MinIO for s3://bucket/prefix,
// a local directory otherwise.
func ForPath(store config.ObjectStoreConfig, target string) (Archiver, error) {
	if bucket, prefix, ok := ParseS3(target); ok {
		return NewMinIO(store, bucket, prefix)
	}
	return NewLocal(target), nil
}

// ParseS3 splits an s3://bucket/prefix target
func ParseS3(target string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(target, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

// Local archives into a directory, created on first use
type Local struct {
	dir string
}

// NewLocal creates an archiver for dir
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Archive(_ context.Context, src, name string, keep bool) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	target := UniquePath(l.dir, name)

	if keep {
		if err := copyFile(src, target); err != nil {
			return "", err
		}
		return target, nil
	}

	if err := os.Rename(src, target); err != nil {
		// Different file systems; fall back to copy and remove.
		if err := copyFile(src, target); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return target, fmt.Errorf("removing %s: %w", src, err)
		}
	}
	return target, nil
}

// UniquePath returns dir/name, or dir/base_N.ext for the first N that does
// not exist yet
func UniquePath(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		target = filepath.Join(dir, base+"_"+strconv.Itoa(i)+ext)
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
