package archive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
)

type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO archives into a bucket of an S3-compatible object store
type MinIO struct {
	client objectPutter
	bucket string
	prefix string
}

// NewMinIO creates an archiver for bucket/prefix using the object store
// settings
func NewMinIO(cfg config.ObjectStoreConfig, bucket, prefix string) (*MinIO, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("object store endpoint is required for s3:// archive paths")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, fmt.Errorf("object store endpoint must not include scheme: %q", cfg.Endpoint)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &MinIO{client: client, bucket: bucket, prefix: prefix}, nil
}

func (m *MinIO) Archive(ctx context.Context, src, name string, keep bool) (string, error) {
	key := path.Join(m.prefix, name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	putCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	if _, err := m.client.FPutObject(putCtx, m.bucket, key, src, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("uploading %s to bucket %s: %w", src, m.bucket, err)
	}

	location := "s3://" + m.bucket + "/" + key
	if !keep {
		if err := os.Remove(src); err != nil {
			return location, fmt.Errorf("removing %s: %w", src, err)
		}
	}
	return location, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
