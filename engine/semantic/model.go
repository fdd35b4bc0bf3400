package semantic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// Payload keys.
const (
	keyUnitID     = "unit_id"
	keyDocID      = "doc_id"
	keyDocName    = "doc_name"
	keyPage       = "page_number"
	keyUnitIndex  = "unit_index"
	keyType       = "type"
	keyText       = "text"
	keyTextLength = "text_length"
	keyBoxX       = "bbox_x"
	keyBoxY       = "bbox_y"
	keyBoxWidth   = "bbox_width"
	keyBoxHeight  = "bbox_height"
	keyCreatedAt  = "created_at"
)

// IndexInfo describes a collection.
type IndexInfo struct {
	Name    string `json:"name"`
	Dims    int    `json:"dims"`
	Metric  string `json:"metric"`
	Points  int    `json:"points"`
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// PointID maps a unit id onto the UUID point id space Qdrant requires.
// The mapping is deterministic, so re-upserting a unit overwrites it.
func PointID(unitID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(unitID)).String()
}

func payloadFor(m domain.Metadata) map[string]any {
	return map[string]any{
		keyUnitID:     m.UnitID,
		keyDocID:      m.DocumentID,
		keyDocName:    m.DocName,
		keyPage:       m.PageNumber,
		keyUnitIndex:  m.UnitIndex,
		keyType:       string(m.Type),
		keyText:       m.Text,
		keyTextLength: m.TextLength,
		keyBoxX:       m.BoundingBox.X,
		keyBoxY:       m.BoundingBox.Y,
		keyBoxWidth:   m.BoundingBox.Width,
		keyBoxHeight:  m.BoundingBox.Height,
		keyCreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toValues(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
}

// number reads a numeric payload value whichever way it was stored.
func number(v *pb.Value) float64 {
	switch k := v.GetKind().(type) {
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_IntegerValue:
		return float64(k.IntegerValue)
	}
	return 0
}

func metadataFrom(payload map[string]*pb.Value) domain.Metadata {
	m := domain.Metadata{
		UnitID:     payload[keyUnitID].GetStringValue(),
		DocumentID: payload[keyDocID].GetStringValue(),
		DocName:    payload[keyDocName].GetStringValue(),
		PageNumber: int(number(payload[keyPage])),
		UnitIndex:  int(number(payload[keyUnitIndex])),
		Type:       domain.UnitType(payload[keyType].GetStringValue()),
		Text:       payload[keyText].GetStringValue(),
		TextLength: int(number(payload[keyTextLength])),
		BoundingBox: domain.BoundingBox{
			X:      number(payload[keyBoxX]),
			Y:      number(payload[keyBoxY]),
			Width:  number(payload[keyBoxWidth]),
			Height: number(payload[keyBoxHeight]),
		},
	}
	if ts, err := time.Parse(time.RFC3339Nano, payload[keyCreatedAt].GetStringValue()); err == nil {
		m.CreatedAt = ts
	}
	return m
}
