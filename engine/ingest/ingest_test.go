package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/engine/embed"
	"github.com/aitutor/pdf-tutor/engine/semantic"
	"github.com/aitutor/pdf-tutor/engine/vision"
	"github.com/aitutor/pdf-tutor/pkg/llm"
)

// --- PDF fixture ---

func buildPDF(objs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// catPDF is one page with a sentence and an 8x8 RGB image of a "dog".
func catPDF() []byte {
	content := "BT /F1 12 Tf 72 700 Td (The cat sat on the mat.) Tj ET\n" +
		"q 100 0 0 80 72 500 cm /Im1 Do Q"
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R " +
			"/Resources << /Font << /F1 5 0 R >> /XObject << /Im1 6 0 R >> >> >>",
		stream("", content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		stream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8",
			strings.Repeat("x", 8*8*3)),
	})
}

// --- Fakes ---

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	units     map[string]domain.ContentUnit
	upserts   int
	upsertErr error
}

func newFakeDocs(docs ...domain.Document) *fakeDocs {
	f := &fakeDocs{docs: map[string]domain.Document{}, units: map[string]domain.ContentUnit{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return d, nil
}

func (f *fakeDocs) SetDocumentStatus(_ context.Context, id string, s domain.DocumentStatus, pages, units int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	d.Status, d.TotalPages, d.TotalUnits = s, pages, units
	f.docs[id] = d
	return nil
}

func (f *fakeDocs) UpsertUnits(_ context.Context, units []domain.ContentUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, u := range units {
		f.units[u.ID] = u
	}
	return nil
}

func (f *fakeDocs) PruneUnits(_ context.Context, docID string, keep []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fresh := make(map[string]bool, len(keep))
	for _, id := range keep {
		fresh[id] = true
	}
	var n int64
	for id, u := range f.units {
		if u.DocumentID == docID && !fresh[id] {
			delete(f.units, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeDocs) sorted(docID string) []domain.ContentUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ContentUnit
	for i := 0; i < len(f.units); i++ {
		for _, u := range f.units {
			if u.DocumentID == docID && u.UnitIndex == i {
				out = append(out, u)
			}
		}
	}
	return out
}

type bytesLoader struct {
	data []byte
	err  error
}

func (b bytesLoader) Load(context.Context, domain.Document) ([]byte, error) { return b.data, b.err }

// wordEmbedder maps text onto a tiny bag-of-words space.
type wordEmbedder struct{ fail bool }

func (w wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if w.fail {
		return nil, errors.New("provider down")
	}
	t := strings.ToLower(text)
	return []float32{
		float32(strings.Count(t, "cat")) + 0.01,
		float32(strings.Count(t, "dog")) + 0.01,
	}, nil
}

type failingIndex struct{ semantic.Index }

func (failingIndex) DeleteByDocument(context.Context, string) error { return errors.New("index down") }
func (failingIndex) Upsert(context.Context, []domain.EmbeddingRecord) error {
	return errors.New("index down")
}

func dogVision() *vision.Describer {
	return vision.New(llm.DescribeFunc(func(_ context.Context, img llm.Image, _ string) (string, error) {
		if img.MIME != "image/png" {
			return "", fmt.Errorf("unexpected mime %s", img.MIME)
		}
		return "A photo of a brown dog.", nil
	}))
}

func testOrchestrator(docs *fakeDocs, loader bytesLoader, idx Index, emb wordEmbedder) *Orchestrator {
	return New(Deps{
		Documents: docs,
		Loader:    loader,
		Index:     idx,
		Embed:     embed.New(llm.EmbedFunc(emb.Embed), 2).Stage(),
		Assembler: &Assembler{Describer: dogVision(), ImageTimeout: time.Second},
		Workers:   4,
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})
}

var catDoc = domain.Document{ID: "doc1", OriginalName: "cats.pdf"}

// --- Tests ---

func TestChunk_EndToEnd(t *testing.T) {
	docs := newFakeDocs(catDoc)
	idx := semantic.NewMemoryIndex("test", 2)
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, idx, wordEmbedder{})

	report := o.Chunk(context.Background(), "doc1")
	if !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if report.TotalPages != 1 || report.TotalUnits != 2 {
		t.Fatalf("report = %+v", report)
	}

	units := docs.sorted("doc1")
	if len(units) != 2 {
		t.Fatalf("persisted %d units", len(units))
	}
	text, img := units[0], units[1]
	if text.Type != domain.UnitText || !strings.Contains(text.Text, "The cat sat on the mat.") {
		t.Errorf("text unit = %+v", text)
	}
	if img.Type != domain.UnitImage || img.Text != "A photo of a brown dog." || img.Degraded != "" {
		t.Errorf("image unit = %+v", img)
	}
	if img.BoundingBox != (domain.BoundingBox{X: 72, Y: 500, Width: 100, Height: 80}) {
		t.Errorf("image bbox = %+v", img.BoundingBox)
	}
	if text.ID != "doc1-1-0" || img.ID != "doc1-1-1" {
		t.Errorf("ids = %s, %s", text.ID, img.ID)
	}
	if !text.Searchable() || !img.Searchable() {
		t.Error("both units should be searchable")
	}

	if n, _ := idx.Count(context.Background(), domain.SearchFilter{DocumentID: "doc1"}); n != 2 {
		t.Errorf("index count = %d, want 2", n)
	}
	res, _ := idx.Search(context.Background(), []float32{1, 0.01}, domain.SearchFilter{DocumentID: "doc1"}, 5)
	if len(res) != 2 || res[0].Unit.ID != "doc1-1-0" {
		t.Errorf("cat query ranking = %+v", res)
	}

	d, _ := docs.GetDocument(context.Background(), "doc1")
	if d.Status != domain.StatusReady || d.TotalUnits != 2 {
		t.Errorf("document = %+v", d)
	}
}

func TestChunk_Rechunk(t *testing.T) {
	docs := newFakeDocs(catDoc)
	idx := semantic.NewMemoryIndex("test", 2)
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, idx, wordEmbedder{})
	ctx := context.Background()

	first := o.Chunk(ctx, "doc1")
	second := o.Chunk(ctx, "doc1")
	if first != second {
		t.Fatalf("reports differ: %+v vs %+v", first, second)
	}
	if n, _ := idx.Count(ctx, domain.SearchFilter{}); n != 2 {
		t.Errorf("index count after rechunk = %d, want 2", n)
	}
}

func TestChunk_RechunkPrunesUnitsFromOldLayout(t *testing.T) {
	docs := newFakeDocs(catDoc)
	// A previous run placed unit index 0 on page 2.
	stale := domain.NewContentUnit("doc1", 2, 0, domain.UnitText, "old layout", domain.BoundingBox{Width: 1, Height: 1})
	docs.units[stale.ID] = stale
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, semantic.NewMemoryIndex("t", 2), wordEmbedder{})

	if report := o.Chunk(context.Background(), "doc1"); !report.Success {
		t.Fatalf("report = %+v", report)
	}
	docs.mu.Lock()
	_, left := docs.units[stale.ID]
	total := len(docs.units)
	docs.mu.Unlock()
	if left || total != 2 {
		t.Errorf("stale unit left = %v, units = %d, want 2", left, total)
	}
}

func TestChunk_DocumentNotFound(t *testing.T) {
	o := testOrchestrator(newFakeDocs(), bytesLoader{data: catPDF()}, semantic.NewMemoryIndex("t", 2), wordEmbedder{})
	report := o.Chunk(context.Background(), "missing")
	if report.Success || report.Error != MsgDocumentNotFound {
		t.Fatalf("report = %+v", report)
	}
}

func TestChunk_HardFailures(t *testing.T) {
	tests := []struct {
		name   string
		loader bytesLoader
	}{
		{"unreadable", bytesLoader{err: errors.New("disk gone")}},
		{"unparsable", bytesLoader{data: []byte("definitely not a pdf")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := newFakeDocs(catDoc)
			idx := semantic.NewMemoryIndex("t", 2)
			idx.Upsert(context.Background(), []domain.EmbeddingRecord{{
				ID: "doc1-1-0", Vector: []float32{1, 1},
				Metadata: domain.Metadata{UnitID: "doc1-1-0", DocumentID: "doc1"},
			}})
			o := testOrchestrator(docs, tt.loader, idx, wordEmbedder{})

			report := o.Chunk(context.Background(), "doc1")
			if report.Success || report.Error == "" {
				t.Fatalf("report = %+v", report)
			}
			if docs.upserts != 0 {
				t.Error("no units should be written on a hard failure")
			}
			if n, _ := idx.Count(context.Background(), domain.SearchFilter{}); n != 1 {
				t.Error("existing vectors should be untouched on a hard failure")
			}
			d, _ := docs.GetDocument(context.Background(), "doc1")
			if d.Status != domain.StatusFailed {
				t.Errorf("status = %s", d.Status)
			}
		})
	}
}

func TestChunk_EmbeddingFailureIsSoft(t *testing.T) {
	docs := newFakeDocs(catDoc)
	idx := semantic.NewMemoryIndex("t", 2)
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, idx, wordEmbedder{fail: true})

	report := o.Chunk(context.Background(), "doc1")
	if !report.Success || report.TotalUnits != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, u := range docs.sorted("doc1") {
		if u.Searchable() {
			t.Errorf("unit %s should not be searchable", u.ID)
		}
		if !strings.HasPrefix(u.Degraded, "embed:") {
			t.Errorf("unit %s degraded = %q", u.ID, u.Degraded)
		}
	}
	if n, _ := idx.Count(context.Background(), domain.SearchFilter{}); n != 0 {
		t.Errorf("index count = %d, want 0", n)
	}
}

func TestChunk_EmbedStageDimensionCheck(t *testing.T) {
	docs := newFakeDocs(catDoc)
	idx := semantic.NewMemoryIndex("t", 3)
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, idx, wordEmbedder{})
	// The service expects three dimensions; wordEmbedder returns two.
	o.deps.Embed = embed.New(llm.EmbedFunc(wordEmbedder{}.Embed), 3).Stage()

	report := o.Chunk(context.Background(), "doc1")
	if !report.Success || report.TotalUnits != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, u := range docs.sorted("doc1") {
		if u.Searchable() || !strings.Contains(u.Degraded, "dimension mismatch") {
			t.Errorf("unit %s: searchable=%v degraded=%q", u.ID, u.Searchable(), u.Degraded)
		}
	}
	if n, _ := idx.Count(context.Background(), domain.SearchFilter{}); n != 0 {
		t.Errorf("index count = %d, want 0", n)
	}
}

func TestChunk_IndexFailureIsSoft(t *testing.T) {
	docs := newFakeDocs(catDoc)
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, failingIndex{}, wordEmbedder{})
	report := o.Chunk(context.Background(), "doc1")
	if !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if len(docs.sorted("doc1")) != 2 {
		t.Error("units should still be persisted")
	}
}

func TestChunk_StoreFailureIsHard(t *testing.T) {
	docs := newFakeDocs(catDoc)
	docs.upsertErr = errors.New("db down")
	o := testOrchestrator(docs, bytesLoader{data: catPDF()}, semantic.NewMemoryIndex("t", 2), wordEmbedder{})
	report := o.Chunk(context.Background(), "doc1")
	if report.Success || !strings.Contains(report.Error, "db down") {
		t.Fatalf("report = %+v", report)
	}
}

func TestChunk_InvalidID(t *testing.T) {
	o := testOrchestrator(newFakeDocs(), bytesLoader{}, semantic.NewMemoryIndex("t", 2), wordEmbedder{})
	if report := o.Chunk(context.Background(), "a/b"); report.Success {
		t.Fatal("expected failure for invalid id")
	}
}
