package semantic

import (
	"context"
	"fmt"
	"sort"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aitutor/pdf-tutor/engine/domain"
	"github.com/aitutor/pdf-tutor/pkg/fn"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// ReadyRetry is the default readiness poll: 30 attempts, 2s apart.
var ReadyRetry = fn.RetryOpts{MaxAttempts: 30, InitialWait: 2 * time.Second, MaxWait: 2 * time.Second}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	dims        int
	ready       fn.RetryOpts
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr, collection string, dims int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dims)
	vs.conn = conn
	return vs, nil
}

// NewWithClients creates a VectorStore over existing clients (used in tests).
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string, dims int) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		dims:        dims,
		ready:       ReadyRetry,
	}
}

// WithReadyRetry overrides the readiness poll schedule.
func (v *VectorStore) WithReadyRetry(opts fn.RetryOpts) *VectorStore {
	v.ready = opts
	return v
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// EnsureReady creates the collection if needed and polls until Qdrant
// reports it usable. It is idempotent.
func (v *VectorStore) EnsureReady(ctx context.Context) error {
	if err := v.EnsureCollection(ctx, v.dims); err != nil {
		return err
	}
	r := fn.Retry(ctx, v.ready, func(ctx context.Context) fn.Result[pb.CollectionStatus] {
		resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
		if err != nil {
			return fn.Err[pb.CollectionStatus](err)
		}
		status := resp.GetResult().GetStatus()
		if !usable(status) {
			return fn.Errf[pb.CollectionStatus]("collection %s status %s", v.collection, status)
		}
		return fn.Ok(status)
	})
	if r.IsErr() {
		return fmt.Errorf("%w: %s: %w", domain.ErrIndexNotReady, v.collection, r.Reason())
	}
	return nil
}

func usable(s pb.CollectionStatus) bool {
	switch s {
	case pb.CollectionStatus_Green, pb.CollectionStatus_Yellow, pb.CollectionStatus_Grey:
		return true
	}
	return false
}

// Info reports the collection's dimension, metric, status and point count.
func (v *VectorStore) Info(ctx context.Context) (IndexInfo, error) {
	resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return IndexInfo{}, fmt.Errorf("semantic: collection info %s: %w", v.collection, err)
	}
	res := resp.GetResult()
	params := res.GetConfig().GetParams().GetVectorsConfig().GetParams()
	info := IndexInfo{
		Name:    v.collection,
		Dims:    int(params.GetSize()),
		Metric:  params.GetDistance().String(),
		Status:  res.GetStatus().String(),
		Backend: "qdrant",
	}
	n, err := v.Count(ctx, domain.SearchFilter{})
	if err != nil {
		return info, err
	}
	info.Points = n
	return info, nil
}

// Upsert stores embedding records, overwriting any with the same unit id.
func (v *VectorStore) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: toValues(payloadFor(r.Metadata)),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocument removes every point whose doc_id matches.
func (v *VectorStore) DeleteByDocument(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: docFilter(docID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// DeleteByIDs removes the points for the given unit ids.
func (v *VectorStore) DeleteByIDs(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(unitIDs))
	for i, id := range unitIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %d points: %w", len(unitIDs), err)
	}
	return nil
}

// Search returns up to topK units by descending cosine similarity. A filter
// with a document id only admits that document's units.
func (v *VectorStore) Search(ctx context.Context, vector []float32, filter domain.SearchFilter, topK int) ([]domain.RetrievalResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if filter.DocumentID != "" {
		req.Filter = docFilter(filter.DocumentID)
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.RetrievalResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		m := metadataFrom(r.GetPayload())
		if filter.DocumentID != "" && m.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, domain.RetrievalResult{Unit: m.Unit(), Score: r.GetScore()})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Count returns the number of points matching filter.
func (v *VectorStore) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	exact := true
	req := &pb.CountPoints{CollectionName: v.collection, Exact: &exact}
	if filter.DocumentID != "" {
		req.Filter = docFilter(filter.DocumentID)
	}
	resp, err := v.points.Count(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func docFilter(docID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{fieldMatch(keyDocID, docID)}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
