package telemedida

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/biaops/telemedida-app-sheets/ledger"
	"github.com/biaops/telemedida-app-sheets/telemetry"
)

type stubSource struct {
	metersight []telemetry.Record
	appops     []telemetry.Record
	err        error
}

func (s *stubSource) Extract(ctx context.Context, asOf time.Time) ([]telemetry.Record, []telemetry.Record, error) {
	return s.metersight, s.appops, s.err
}

type stubLedger struct {
	outcomes map[string]ledger.Outcome
	errs     map[string]error
	calls    []string
}

func (s *stubLedger) Upsert(ctx context.Context, record telemetry.Record) (ledger.Outcome, error) {
	s.calls = append(s.calls, record.ClientCode)

	if err, ok := s.errs[record.ClientCode]; ok {
		return 0, err
	}

	return s.outcomes[record.ClientCode], nil
}

func reading(code string, timestamp string) telemetry.Record {
	t, err := time.ParseInLocation("2006-01-02 15:04", timestamp, telemetry.Local)
	if err != nil {
		panic(err)
	}

	return telemetry.Record{
		ReadTimestampLocal: t,
		ClientCode:         code,
		MeterFactor:        5,
		Brand:              "BrandX",
		Serial:             "S1",
		IP:                 "1.1.1.1",
	}
}

func TestRunProcessesAllCodes(t *testing.T) {
	source := &stubSource{
		metersight: []telemetry.Record{
			reading("C1", "2025-10-26 10:00"),
			reading("C2", "2025-10-26 08:00"),
		},
		appops: []telemetry.Record{
			reading("C3", "2025-10-26 09:00"),
		},
	}

	sheet := &stubLedger{
		outcomes: map[string]ledger.Outcome{
			"C1": ledger.Updated,
			"C2": ledger.Inserted,
			"C3": ledger.Updated,
		},
	}

	s := NewService(source, sheet, zap.NewNop().Sugar())

	result := s.Run(context.Background(), time.Now().In(telemetry.Local), false)

	if !result.Success {
		t.Fatalf("Expected successful run, got %+v", result)
	}

	if result.TotalProcessed != 3 || result.UpdatedCount != 2 || result.InsertedCount != 1 || result.ErrorCount != 0 {
		t.Errorf("Incorrect counts: %+v", result)
	}

	if !reflect.DeepEqual(result.Results.Updated, []string{"C1", "C3"}) {
		t.Errorf("Incorrect updated list: %v", result.Results.Updated)
	}

	if !reflect.DeepEqual(result.Results.Inserted, []string{"C2"}) {
		t.Errorf("Incorrect inserted list: %v", result.Results.Inserted)
	}

	// merge order: most recent first
	if !reflect.DeepEqual(sheet.calls, []string{"C1", "C3", "C2"}) {
		t.Errorf("Incorrect processing order: %v", sheet.calls)
	}

	if result.RunID == "" {
		t.Errorf("Expected a run ID, got %+v", result)
	}
}

func TestRunContinuesAfterCodeFailure(t *testing.T) {
	source := &stubSource{
		metersight: []telemetry.Record{
			reading("C1", "2025-10-26 10:00"),
			reading("C2", "2025-10-26 09:00"),
			reading("C3", "2025-10-26 08:00"),
		},
	}

	sheet := &stubLedger{
		outcomes: map[string]ledger.Outcome{
			"C1": ledger.Updated,
			"C3": ledger.Inserted,
		},
		errs: map[string]error{
			"C2": &ledger.RowStoreError{Op: "cell C2 write", Err: errors.New("rate limited")},
		},
	}

	s := NewService(source, sheet, zap.NewNop().Sugar())

	result := s.Run(context.Background(), time.Now().In(telemetry.Local), false)

	if !result.Success {
		t.Fatalf("Expected code-level errors to leave the run successful, got %+v", result)
	}

	if !reflect.DeepEqual(sheet.calls, []string{"C1", "C2", "C3"}) {
		t.Errorf("Expected all codes processed, got %v", sheet.calls)
	}

	if result.ErrorCount != 1 || len(result.Results.Errors) != 1 {
		t.Fatalf("Incorrect error counts: %+v", result)
	}

	if !strings.Contains(result.Results.Errors[0], "C2") {
		t.Errorf("Expected error to identify the code, got '%s'", result.Results.Errors[0])
	}
}

func TestRunFailsOnExtractionError(t *testing.T) {
	source := &stubSource{
		err: &telemetry.ExtractionError{Source: "metersight", Err: errors.New("connection reset")},
	}

	sheet := &stubLedger{}

	s := NewService(source, sheet, zap.NewNop().Sugar())

	result := s.Run(context.Background(), time.Now().In(telemetry.Local), false)

	if result.Success {
		t.Fatalf("Expected failed run, got %+v", result)
	}

	if result.Error == "" || !strings.Contains(result.Error, "metersight") {
		t.Errorf("Expected error identifying the source, got '%s'", result.Error)
	}

	if len(sheet.calls) != 0 {
		t.Errorf("Expected no upserts after a failed extraction, got %v", sheet.calls)
	}
}

func TestRunAbortsWhenLedgerHasNoClientCodeColumn(t *testing.T) {
	source := &stubSource{
		metersight: []telemetry.Record{
			reading("C1", "2025-10-26 10:00"),
			reading("C2", "2025-10-26 09:00"),
		},
	}

	sheet := &stubLedger{
		errs: map[string]error{
			"C1": &ledger.SchemaError{Column: ledger.ColClientCode},
			"C2": &ledger.SchemaError{Column: ledger.ColClientCode},
		},
	}

	s := NewService(source, sheet, zap.NewNop().Sugar())

	result := s.Run(context.Background(), time.Now().In(telemetry.Local), false)

	if result.Success {
		t.Fatalf("Expected failed run, got %+v", result)
	}

	if len(sheet.calls) != 1 {
		t.Errorf("Expected the run to abort after the first code, got %v", sheet.calls)
	}
}

func TestRunForceFlagIsReserved(t *testing.T) {
	source := &stubSource{
		metersight: []telemetry.Record{reading("C1", "2025-10-26 10:00")},
	}

	sheet := &stubLedger{
		outcomes: map[string]ledger.Outcome{"C1": ledger.Updated},
	}

	s := NewService(source, sheet, zap.NewNop().Sugar())

	result := s.Run(context.Background(), time.Now().In(telemetry.Local), true)

	if !result.Success || result.UpdatedCount != 1 {
		t.Errorf("Expected force flag to have no effect, got %+v", result)
	}
}
