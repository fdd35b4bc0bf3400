package store

import (
	"time"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// Document is the documents table row.
type Document struct {
	ID           string `gorm:"primaryKey;size:64"`
	OwnerID      string `gorm:"size:64;index"`
	OriginalName string `gorm:"size:512;not null"`
	FilePath     string `gorm:"size:1024"`
	FileSize     int64
	Status       string `gorm:"size:16;not null;default:pending"`
	TotalPages   int
	TotalUnits   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unit is the content_units table row. (document_id, page_number,
// unit_index) is unique and is the upsert key.
type Unit struct {
	ID                string  `gorm:"primaryKey;size:255"`
	DocumentID        string  `gorm:"size:64;not null;uniqueIndex:idx_unit_position,priority:1"`
	PageNumber        int     `gorm:"not null;uniqueIndex:idx_unit_position,priority:2"`
	UnitIndex         int     `gorm:"not null;uniqueIndex:idx_unit_position,priority:3"`
	Type              string  `gorm:"size:16;not null"`
	Text              string  `gorm:"type:text"`
	BBoxX             float64 `gorm:"column:bbox_x"`
	BBoxY             float64 `gorm:"column:bbox_y"`
	BBoxWidth         float64 `gorm:"column:bbox_width"`
	BBoxHeight        float64 `gorm:"column:bbox_height"`
	TextLength        int
	EmbeddingVectorID string `gorm:"size:255"`
	Degraded          string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Unit) TableName() string { return "content_units" }

func documentRow(d domain.Document) Document {
	return Document{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		OriginalName: d.OriginalName,
		FilePath:     d.FilePath,
		FileSize:     d.FileSize,
		Status:       string(d.Status),
		TotalPages:   d.TotalPages,
		TotalUnits:   d.TotalUnits,
		CreatedAt:    d.CreatedAt,
	}
}

func (r Document) toDomain() domain.Document {
	return domain.Document{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		OriginalName: r.OriginalName,
		FilePath:     r.FilePath,
		FileSize:     r.FileSize,
		Status:       domain.DocumentStatus(r.Status),
		TotalPages:   r.TotalPages,
		TotalUnits:   r.TotalUnits,
		CreatedAt:    r.CreatedAt,
	}
}

func unitRow(u domain.ContentUnit) Unit {
	return Unit{
		ID:                u.ID,
		DocumentID:        u.DocumentID,
		PageNumber:        u.PageNumber,
		UnitIndex:         u.UnitIndex,
		Type:              string(u.Type),
		Text:              u.Text,
		BBoxX:             u.BoundingBox.X,
		BBoxY:             u.BoundingBox.Y,
		BBoxWidth:         u.BoundingBox.Width,
		BBoxHeight:        u.BoundingBox.Height,
		TextLength:        u.TextLength,
		EmbeddingVectorID: u.EmbeddingVectorID,
		Degraded:          u.Degraded,
	}
}

func (r Unit) toDomain() domain.ContentUnit {
	return domain.ContentUnit{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		PageNumber: r.PageNumber,
		UnitIndex:  r.UnitIndex,
		Type:       domain.UnitType(r.Type),
		Text:       r.Text,
		BoundingBox: domain.BoundingBox{
			X:      r.BBoxX,
			Y:      r.BBoxY,
			Width:  r.BBoxWidth,
			Height: r.BBoxHeight,
		},
		TextLength:        r.TextLength,
		EmbeddingVectorID: r.EmbeddingVectorID,
		Degraded:          r.Degraded,
	}
}
