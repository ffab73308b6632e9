// Package ledger maintains the shared operational ledger - a Google Sheets
// worksheet keyed by client code - applying the per-code update/insert logic
// against an abstract row store.
package ledger

import (
	"context"
	"fmt"
)

// Store is the capability set required of the backing row store. Rows and
// columns are 1-based; row 1 is the header row and is never data.
type Store interface {
	// Header returns the header row (row 1).
	Header(ctx context.Context) ([]string, error)

	// Column returns the values of a column from row 1 down to the last row
	// with content in that column.
	Column(ctx context.Context, col int) ([]string, error)

	// Find returns the row of the first cell in the column matching value.
	// Absence is a normal outcome, not an error.
	Find(ctx context.Context, col int, value string) (int, bool, error)

	// ReadCell returns the displayed value of a single cell.
	ReadCell(ctx context.Context, row, col int) (string, error)

	// WriteCell sets a single cell, interpreting the value as if typed in by
	// a user.
	WriteCell(ctx context.Context, row, col int, value string) error

	// InsertRow inserts a blank row at the given position, shifting the
	// existing rows down.
	InsertRow(ctx context.Context, row int) error

	// CopyRange duplicates a rectangular range of cells - values, formulas
	// and formatting - to another location.
	CopyRange(ctx context.Context, src, dst Range) error

	// Paint applies a background color to a rectangular range.
	Paint(ctx context.Context, area Range, color Color) error
}

// Range is a rectangular cell range, 1-based and inclusive on all sides.
type Range struct {
	Top    int
	Left   int
	Bottom int
	Right  int
}

// Color is an RGB color with components in the range [0.0,1.0].
type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// ParseColor converts a 6 digit hex color ('FFFF00') to a Color.
func ParseColor(hex string) (Color, error) {
	var r, g, b uint8

	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("invalid color '%s' - expected a 6 digit hex value e.g. FFFF00", hex)
	}

	return Color{
		Red:   float64(r) / 255.0,
		Green: float64(g) / 255.0,
		Blue:  float64(b) / 255.0,
	}, nil
}

// SchemaError is returned when the worksheet header row is missing one of the
// mandatory columns. No writes are attempted for the affected code.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("worksheet does not have a '%s' column", e.Column)
}

// RowStoreError wraps a failed row store operation.
type RowStoreError struct {
	Op  string
	Err error
}

func (e *RowStoreError) Error() string {
	return fmt.Sprintf("worksheet %s failed (%v)", e.Op, e.Err)
}

func (e *RowStoreError) Unwrap() error {
	return e.Err
}
