package ledger

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/biaops/telemedida-app-sheets/telemetry"
)

// Mandatory ledger column headers. Header names are the worksheet schema and
// are matched verbatim, embedded linebreaks included.
const (
	ColClientCode  = "ID Interno"
	ColSerial      = "Medidor Principal"
	ColIP          = "IP Principal"
	ColFactor      = "Factor \nFx"
	ColBrand       = "Marca Medidor Activo"
	ColInstallDate = "Fecha Instalación\n(MM/DD/YYYY)"
)

var mandatory = []string{
	ColClientCode,
	ColSerial,
	ColIP,
	ColFactor,
	ColBrand,
}

// Outcome is the terminal state of a processed code.
type Outcome int

const (
	Updated Outcome = iota + 1
	Inserted
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Inserted:
		return "inserted"
	}

	return "unknown"
}

// Ledger applies the per-code upsert to the row store.
type Ledger struct {
	store        Store
	carryForward []Span
	highlight    Color
	log          *zap.SugaredLogger
}

// NewLedger parses the carry-forward column ranges and highlight color once,
// up front.
func NewLedger(store Store, carryForward []string, highlight string, log *zap.SugaredLogger) (*Ledger, error) {
	spans, err := ParseSpans(carryForward)
	if err != nil {
		return nil, err
	}

	color, err := ParseColor(highlight)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		store:        store,
		carryForward: spans,
		highlight:    color,
		log:          log,
	}, nil
}

// Upsert reconciles a single canonical record against the ledger: if a row
// for the client code exists its serial, IP, factor and brand cells are
// overwritten in place, otherwise a new row is inserted after the last
// populated row, seeded from the row above. The affected row is highlighted
// for human review.
//
// The header-to-column index is rebuilt from row 1 on every call - the
// worksheet schema is human-editable and is not assumed stable.
func (l *Ledger) Upsert(ctx context.Context, record telemetry.Record) (Outcome, error) {
	header, err := l.store.Header(ctx)
	if err != nil {
		return 0, err
	}

	index := columnIndex(header)

	for _, col := range mandatory {
		if _, ok := index[col]; !ok {
			return 0, &SchemaError{Column: col}
		}
	}

	row, ok, err := l.store.Find(ctx, index[ColClientCode], record.ClientCode)
	if err != nil {
		return 0, err
	}

	if ok {
		if err := l.update(ctx, row, index, record); err != nil {
			return 0, err
		}

		l.paint(ctx, row)

		return Updated, nil
	}

	row, err = l.insert(ctx, index, record)
	if err != nil {
		return 0, err
	}

	l.paint(ctx, row)

	return Inserted, nil
}

// update overwrites exactly four cells, leaving everything else - the client
// code cell included - untouched. Each write is discrete and independently
// retryable; no partial-row atomicity is assumed.
func (l *Ledger) update(ctx context.Context, row int, index map[string]int, record telemetry.Record) error {
	cells := []struct {
		column string
		value  string
	}{
		{ColSerial, record.Serial},
		{ColIP, record.IP},
		{ColFactor, strconv.Itoa(record.MeterFactor)},
		{ColBrand, record.Brand},
	}

	for _, cell := range cells {
		if err := l.store.WriteCell(ctx, row, index[cell.column], cell.value); err != nil {
			return err
		}

		l.log.Debugf("row %d: %q <- %q", row, cell.column, cell.value)
	}

	return nil
}

// insert allocates a new row immediately after the last populated row, copies
// the carry-forward ranges down from the row above and writes the mandatory
// fields plus - if the schema defines the column - the installation date.
func (l *Ledger) insert(ctx context.Context, index map[string]int, record telemetry.Record) (int, error) {
	last, err := l.lastPopulatedRow(ctx, index[ColClientCode])
	if err != nil {
		return 0, err
	}

	row := last + 1

	if err := l.store.InsertRow(ctx, row); err != nil {
		return 0, err
	}

	for _, span := range l.carryForward {
		src := Range{Top: row - 1, Bottom: row - 1, Left: span.Left, Right: span.Right}
		dst := Range{Top: row, Bottom: row, Left: span.Left, Right: span.Right}

		if err := l.store.CopyRange(ctx, src, dst); err != nil {
			return 0, err
		}
	}

	cells := []struct {
		column string
		value  string
	}{
		{ColClientCode, record.ClientCode},
		{ColSerial, record.Serial},
		{ColIP, record.IP},
		{ColFactor, strconv.Itoa(record.MeterFactor)},
		{ColBrand, record.Brand},
	}

	for _, cell := range cells {
		if err := l.store.WriteCell(ctx, row, index[cell.column], cell.value); err != nil {
			return 0, err
		}
	}

	// The installation date is written once, at insert time only.
	if col, ok := index[ColInstallDate]; ok {
		date := record.ReadTimestampLocal.Format("01/02/2006")
		if err := l.store.WriteCell(ctx, row, col, date); err != nil {
			return 0, err
		}
	}

	l.log.Infof("inserted row %d for code %s", row, record.ClientCode)

	return row, nil
}

// lastPopulatedRow scans the client code column from the top and returns the
// last row before the trailing blank run. Interior gaps do not end the data.
func (l *Ledger) lastPopulatedRow(ctx context.Context, col int) (int, error) {
	values, err := l.store.Column(ctx, col)
	if err != nil {
		return 0, err
	}

	last := len(values)
	for last > 1 && strings.TrimSpace(values[last-1]) == "" {
		last--
	}

	return last, nil
}

// paint highlights the row across the current header width, recomputed per
// call. Highlighting is advisory - a failure is logged but does not fail the
// upsert.
func (l *Ledger) paint(ctx context.Context, row int) {
	header, err := l.store.Header(ctx)
	if err != nil {
		l.log.Warnf("unable to highlight row %d (%v)", row, err)
		return
	}

	area := Range{Top: row, Bottom: row, Left: 1, Right: len(header)}

	if err := l.store.Paint(ctx, area, l.highlight); err != nil {
		l.log.Warnf("unable to highlight row %d (%v)", row, err)
	}
}

// columnIndex maps header names to 1-based column positions. On duplicate
// headers the rightmost occurrence wins.
func columnIndex(header []string) map[string]int {
	index := map[string]int{}
	for i, name := range header {
		index[name] = i + 1
	}

	return index
}
