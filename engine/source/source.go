// Package source loads and stores raw document bytes. Documents live either
// on local disk under an upload directory or behind an HTTP(S) URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// MaxDocumentBytes bounds a single document read.
const MaxDocumentBytes = 64 << 20

// ErrTooLarge is returned when a document exceeds MaxDocumentBytes.
var ErrTooLarge = errors.New("source: document too large")

// Loader supplies a document's bytes.
type Loader interface {
	Load(ctx context.Context, doc domain.Document) ([]byte, error)
}

// Files stores documents as <dir>/<id>.pdf.
type Files struct {
	dir string
}

// NewFiles creates the upload directory if needed.
func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("source: create %s: %w", dir, err)
	}
	return &Files{dir: dir}, nil
}

// Path returns where document id is stored.
func (f *Files) Path(id string) string {
	return filepath.Join(f.dir, id+".pdf")
}

// Save writes r to the document's path and returns the path and size.
func (f *Files) Save(_ context.Context, id string, r io.Reader) (string, int64, error) {
	if err := domain.ValidateID("id", id); err != nil {
		return "", 0, err
	}
	path := f.Path(id)
	tmp, err := os.CreateTemp(f.dir, id+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("source: save %s: %w", id, err)
	}
	n, err := io.Copy(tmp, io.LimitReader(r, MaxDocumentBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxDocumentBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("source: save %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("source: save %s: %w", id, err)
	}
	return path, n, nil
}

// Remove deletes the stored file. A missing file is not an error.
func (f *Files) Remove(id string) error {
	err := os.Remove(f.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("source: remove %s: %w", id, err)
	}
	return nil
}

// Load reads doc.FilePath when set, otherwise the document's path under dir.
func (f *Files) Load(_ context.Context, doc domain.Document) ([]byte, error) {
	path := doc.FilePath
	if path == "" {
		if err := domain.ValidateID("id", doc.ID); err != nil {
			return nil, err
		}
		path = f.Path(doc.ID)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	defer fh.Close()
	return readAll(fh)
}

// HTTP fetches documents whose FilePath is a URL.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP loader with a traced transport.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{client: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

func (h *HTTP) Load(ctx context.Context, doc domain.Document) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.FilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", doc.ID, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", doc.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetch %s: status %d", doc.ID, resp.StatusCode)
	}
	return readAll(resp.Body)
}

// Router sends URL-backed documents to Remote and the rest to Local.
type Router struct {
	Local  Loader
	Remote Loader
}

func (r Router) Load(ctx context.Context, doc domain.Document) ([]byte, error) {
	if isURL(doc.FilePath) {
		if r.Remote == nil {
			return nil, fmt.Errorf("source: %s is remote and no HTTP loader is configured", doc.ID)
		}
		return r.Remote.Load(ctx, doc)
	}
	return r.Local.Load(ctx, doc)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("source: read: %w", err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
