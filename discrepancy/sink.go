package discrepancy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// Block is one rendered session.
type Block struct {
	Family    string
	Plant     string
	StartedAt time.Time
	Body      []byte
}

type Sink interface {
	Append(ctx context.Context, b Block) error
}

// FileSink appends blocks to a local report file, creating its directory when needed.
type FileSink struct {
	Path string
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Append(_ context.Context, b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if _, err := f.Write(b.Body); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// GCSSink archives every block as its own object:
// <prefix>/<plant>/<family>-<20060102T150405>.txt
type GCSSink struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func (s *GCSSink) ObjectName(b Block) string {
	return path.Join(s.Prefix, b.Plant, fmt.Sprintf("%s-%s.txt", b.Family, b.StartedAt.Format("20060102T150405")))
}

func (s *GCSSink) Append(ctx context.Context, b Block) error {
	if s.Client == nil {
		return errors.New("gcs client is nil")
	}
	w := s.Client.Bucket(s.Bucket).Object(s.ObjectName(b)).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := w.Write(b.Body); err != nil {
		w.Close()
		return fmt.Errorf("upload report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, b Block) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
