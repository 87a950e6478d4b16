package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

const gcsScheme = "gs://"

// ParseGCSURI splits gs://bucket/key. Both parts are required.
func ParseGCSURI(uri string) (bucket, key string, err error) {
	s := strings.TrimSpace(uri)
	if !strings.HasPrefix(s, gcsScheme) {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	rest := strings.TrimPrefix(s, gcsScheme)
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("gs uri needs bucket and object: %q", uri)
	}
	return rest[:i], rest[i+1:], nil
}

func IsGCSURI(dest string) bool {
	return strings.HasPrefix(strings.TrimSpace(dest), gcsScheme)
}

// Exporter writes JSON documents to a local path or a gs:// object. The GCS client
// is opened lazily on the first gs:// destination.
type Exporter struct {
	log       *logger.Logger
	newClient func(ctx context.Context) (*storage.Client, error)
	client    *storage.Client
}

func NewExporter(log *logger.Logger) *Exporter {
	return &Exporter{
		log: log.With("service", "Exporter"),
		newClient: func(ctx context.Context) (*storage.Client, error) {
			cfg, err := StorageConfigFromEnv()
			if err != nil {
				return nil, err
			}
			return NewStorageClient(ctx, cfg)
		},
	}
}

// ExportJSON writes v as indented JSON and returns the number of bytes written.
func (e *Exporter) ExportJSON(ctx context.Context, dest string, v any) (int, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return 0, fmt.Errorf("export destination required")
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal export: %w", err)
	}
	b = append(b, '\n')

	if IsGCSURI(dest) {
		bucket, key, err := ParseGCSURI(dest)
		if err != nil {
			return 0, err
		}
		if err := e.upload(ctx, bucket, key, bytes.NewReader(b)); err != nil {
			return 0, err
		}
	} else {
		if dir := filepath.Dir(dest); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return 0, fmt.Errorf("create export dir: %w", err)
			}
		}
		if err := os.WriteFile(dest, b, 0o644); err != nil {
			return 0, fmt.Errorf("write export: %w", err)
		}
	}
	e.log.Info("Exported", "dest", dest, "bytes", len(b))
	return len(b), nil
}

func (e *Exporter) upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if e.client == nil {
		c, err := e.newClient(ctx)
		if err != nil {
			return fmt.Errorf("open storage client: %w", err)
		}
		e.client = c
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := e.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}
