package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/fn"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteReq  *pb.DeletePoints
	deleteErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	countReq   *pb.CountPoints
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}
func (m *mockPoints) Count(_ context.Context, in *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	m.countReq = in
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   *pb.CreateCollection
	createErr error
	statuses  []pb.CollectionStatus
	getCalls  int
	getErr    error
	dims      uint64
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}
func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	status := pb.CollectionStatus_Green
	if len(m.statuses) > 0 {
		i := m.getCalls
		if i >= len(m.statuses) {
			i = len(m.statuses) - 1
		}
		status = m.statuses[i]
	}
	m.getCalls++
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
		Status: status,
		Config: &pb.CollectionConfig{Params: &pb.CollectionParams{VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: m.dims, Distance: pb.Distance_Cosine}},
		}}},
	}}, nil
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

var fastRetry = fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

func emptyList() *pb.ListCollectionsResponse {
	return &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{}}
}

func record(unitID, docID string, vec []float32) domain.EmbeddingRecord {
	u := domain.NewContentUnit(docID, 1, 0, domain.UnitText, "hello", domain.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4})
	u.ID = unitID
	return domain.EmbeddingRecord{ID: unitID, Vector: vec, Metadata: domain.MetadataFor(u, "notes.pdf", time.Unix(0, 0))}
}

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "test", 4)
	if vs == nil {
		t.Fatal("expected non-nil")
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "test"}},
		},
	}
	vs := NewWithClients(&mockPoints{}, cols, "test", 4)
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Error("should not create an existing collection")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{listResp: emptyList()}
	vs := NewWithClients(&mockPoints{}, cols, "test", 4)
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 4 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("created with %v", params)
	}
}

func TestEnsureCollection_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("conn refused")}
	vs := NewWithClients(&mockPoints{}, cols, "test", 4)
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureReady_WaitsForGreen(t *testing.T) {
	cols := &mockCollections{
		listResp: emptyList(),
		statuses: []pb.CollectionStatus{pb.CollectionStatus_Red, pb.CollectionStatus_Green},
	}
	vs := NewWithClients(&mockPoints{}, cols, "test", 4).WithReadyRetry(fastRetry)
	if err := vs.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if cols.getCalls != 2 {
		t.Errorf("get calls = %d, want 2", cols.getCalls)
	}
}

func TestEnsureReady_NeverReady(t *testing.T) {
	cols := &mockCollections{
		listResp: emptyList(),
		statuses: []pb.CollectionStatus{pb.CollectionStatus_Red},
	}
	vs := NewWithClients(&mockPoints{}, cols, "test", 4).WithReadyRetry(fastRetry)
	err := vs.EnsureReady(context.Background())
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
	if cols.getCalls != 3 {
		t.Errorf("get calls = %d, want 3", cols.getCalls)
	}
}

func TestUpsert_Empty(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if err := vs.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertReq != nil {
		t.Error("empty upsert should not reach qdrant")
	}
}

func TestUpsert_Payload(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	rec := record("doc1-1-0", "doc1", []float32{1, 0, 0, 0})
	if err := vs.Upsert(context.Background(), []domain.EmbeddingRecord{rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !pts.upsertReq.GetWait() {
		t.Error("upsert should wait")
	}
	p := pts.upsertReq.GetPoints()[0]
	if got := p.GetId().GetUuid(); got != PointID("doc1-1-0") {
		t.Errorf("point id = %s", got)
	}
	if got := p.GetPayload()[keyUnitID].GetStringValue(); got != "doc1-1-0" {
		t.Errorf("unit_id = %q", got)
	}
	if got := p.GetPayload()[keyDocID].GetStringValue(); got != "doc1" {
		t.Errorf("doc_id = %q", got)
	}
}

func TestUpsert_Error(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("boom")}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if err := vs.Upsert(context.Background(), []domain.EmbeddingRecord{record("a", "d", []float32{1})}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPointID_Deterministic(t *testing.T) {
	if PointID("doc-1-0") != PointID("doc-1-0") {
		t.Error("PointID should be deterministic")
	}
	if PointID("doc-1-0") == PointID("doc-1-1") {
		t.Error("distinct units should map to distinct points")
	}
}

func TestDeleteByDocument_Filter(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if err := vs.DeleteByDocument(context.Background(), "doc1"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	cond := pts.deleteReq.GetPoints().GetFilter().GetMust()[0].GetField()
	if cond.GetKey() != keyDocID || cond.GetMatch().GetKeyword() != "doc1" {
		t.Errorf("filter = %v", cond)
	}
}

func TestDeleteByIDs(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if err := vs.DeleteByIDs(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	ids := pts.deleteReq.GetPoints().GetPoints().GetIds()
	if len(ids) != 2 || ids[0].GetUuid() != PointID("a") {
		t.Errorf("ids = %v", ids)
	}
	pts.deleteReq = nil
	if err := vs.DeleteByIDs(context.Background(), nil); err != nil || pts.deleteReq != nil {
		t.Error("empty delete should be a no-op")
	}
}

func TestSearch_SortedAndFiltered(t *testing.T) {
	payload := func(unit, doc string) map[string]*pb.Value {
		return toValues(payloadFor(record(unit, doc, nil).Metadata))
	}
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Score: 0.4, Payload: payload("doc1-1-1", "doc1")},
		{Score: 0.9, Payload: payload("doc1-1-0", "doc1")},
		{Score: 0.7, Payload: payload("doc2-1-0", "doc2")},
	}}}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)

	results, err := vs.Search(context.Background(), []float32{1, 0, 0, 0}, domain.SearchFilter{DocumentID: "doc1"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Unit.ID != "doc1-1-0" || results[0].Score != 0.9 {
		t.Errorf("first = %+v", results[0])
	}
	if results[0].Unit.EmbeddingVectorID != "doc1-1-0" {
		t.Errorf("vector id = %q", results[0].Unit.EmbeddingVectorID)
	}
	if pts.searchReq.GetLimit() != 5 || pts.searchReq.GetFilter() == nil {
		t.Errorf("request = %v", pts.searchReq)
	}
}

func TestSearch_NoFilter(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if _, err := vs.Search(context.Background(), []float32{1}, domain.SearchFilter{}, 3); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if pts.searchReq.GetFilter() != nil {
		t.Error("unfiltered search should not send a filter")
	}
}

func TestSearch_Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("unavailable")}
	vs := NewWithClients(pts, &mockCollections{}, "test", 4)
	if _, err := vs.Search(context.Background(), []float32{1}, domain.SearchFilter{}, 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestInfo(t *testing.T) {
	pts := &mockPoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 12}}}
	vs := NewWithClients(pts, &mockCollections{dims: 1536}, "test", 1536)
	info, err := vs.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Dims != 1536 || info.Points != 12 || info.Backend != "qdrant" || info.Status != "Green" {
		t.Errorf("info = %+v", info)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	rec := record("doc1-3-2", "doc1", nil)
	m := metadataFrom(toValues(payloadFor(rec.Metadata)))
	if m.UnitID != "doc1-3-2" || m.DocName != "notes.pdf" || m.BoundingBox.Height != 4 || m.TextLength != 5 {
		t.Errorf("metadata = %+v", m)
	}
	if !m.CreatedAt.Equal(time.Unix(0, 0)) {
		t.Errorf("created_at = %v", m.CreatedAt)
	}
}
