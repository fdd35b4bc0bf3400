package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxQueryLength bounds free-text queries in runes.
	MaxQueryLength = 2000
	// MaxTopK bounds how many results one search may ask for.
	MaxTopK = 100
	// DefaultTopK is used when a caller passes 0.
	DefaultTopK = 5
)

// ValidateQuery checks a free-text query and returns it trimmed.
func ValidateQuery(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewValidationError("query", text, ErrEmptyQuery)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return "", NewValidationError("query", string([]rune(text)[:64])+"...", ErrQueryTooLong)
	}
	return text, nil
}

// NormalizeTopK maps 0 to DefaultTopK and rejects values outside 1..MaxTopK.
func NormalizeTopK(k int) (int, error) {
	if k == 0 {
		return DefaultTopK, nil
	}
	if k < 0 || k > MaxTopK {
		return 0, NewValidationError("top_k", fmt.Sprintf("%d", k), ErrInvalidTopK)
	}
	return k, nil
}

// ValidateID accepts non-empty ids without whitespace, control characters or
// path separators. Ids end up in file paths, unit ids and index filters.
func ValidateID(field, id string) error {
	if id == "" {
		return NewValidationError(field, id, ErrInvalidID)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' || r == '\\' {
			return NewValidationError(field, id, ErrInvalidID)
		}
	}
	if id == "." || id == ".." {
		return NewValidationError(field, id, ErrInvalidID)
	}
	return nil
}

// ValidateUnit checks the structural invariants of a content unit before it
// is persisted.
func ValidateUnit(u ContentUnit) error {
	switch {
	case u.PageNumber < 1:
		return NewValidationError("page_number", fmt.Sprintf("%d", u.PageNumber), ErrInvalidUnit)
	case u.UnitIndex < 0:
		return NewValidationError("unit_index", fmt.Sprintf("%d", u.UnitIndex), ErrInvalidUnit)
	case !ValidUnitTypes[u.Type]:
		return NewValidationError("type", string(u.Type), ErrInvalidUnit)
	case u.BoundingBox.Width < 0 || u.BoundingBox.Height < 0:
		return NewValidationError("bounding_box", fmt.Sprintf("%+v", u.BoundingBox), ErrInvalidUnit)
	case u.ID != UnitID(u.DocumentID, u.PageNumber, u.UnitIndex):
		return NewValidationError("id", u.ID, ErrInvalidUnit)
	case u.TextLength != utf8.RuneCountInString(u.Text):
		return NewValidationError("text_length", fmt.Sprintf("%d", u.TextLength), ErrInvalidUnit)
	}
	return nil
}
