// Package telemedida drives the nightly synchronization of meter telemetry
// into the shared operations ledger.
package telemedida

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/biaops/telemedida-app-sheets/ledger"
	"github.com/biaops/telemedida-app-sheets/telemetry"
)

// Source extracts the two telemetry result sets for a window.
type Source interface {
	Extract(ctx context.Context, asOf time.Time) ([]telemetry.Record, []telemetry.Record, error)
}

// Upserter reconciles a single canonical record against the ledger.
type Upserter interface {
	Upsert(ctx context.Context, record telemetry.Record) (ledger.Outcome, error)
}

// Details lists the per-code outcomes of a run.
type Details struct {
	Updated  []string `json:"updated"`
	Inserted []string `json:"inserted"`
	Errors   []string `json:"errors"`
}

// Result summarizes a run. Code-level errors are advisory and do not clear
// the success flag; only run-level failures (extraction, a ledger with no
// client code column) do.
type Result struct {
	Success        bool    `json:"success"`
	RunID          string  `json:"run_id"`
	TotalProcessed int     `json:"total_processed"`
	UpdatedCount   int     `json:"updated_count"`
	InsertedCount  int     `json:"inserted_count"`
	ErrorCount     int     `json:"error_count"`
	Results        Details `json:"results"`
	Error          string  `json:"error,omitempty"`
}

// Service is the batch orchestrator. Invocations are strictly sequential and
// single-threaded throughout: the row store has no locking discipline, so at
// most one invocation may run at a time.
type Service struct {
	source Source
	ledger Upserter
	log    *zap.SugaredLogger
}

func NewService(source Source, upserter Upserter, log *zap.SugaredLogger) *Service {
	return &Service{
		source: source,
		ledger: upserter,
		log:    log,
	}
}

// Run performs one extraction pass, merges the two result sets and folds the
// canonical records into per-code outcomes. A failure on one code never
// blocks the processing of another.
//
// The force flag is accepted but reserved: it does not change the upsert
// logic.
func (s *Service) Run(ctx context.Context, asOf time.Time, force bool) Result {
	runID := uuid.NewString()
	log := s.log.With("run", runID)

	log.Infof("synchronizing telemetry for window starting %v", asOf.Format("2006-01-02"))

	if force {
		log.Warnf("force update requested - reserved, currently a no-op")
	}

	metersight, appops, err := s.source.Extract(ctx, asOf)
	if err != nil {
		log.Errorf("%v", err)
		return Result{RunID: runID, Error: err.Error()}
	}

	canonical := telemetry.Merge(metersight, appops)

	log.Infof("merged %d readings into %d canonical records", len(metersight)+len(appops), len(canonical))

	details := Details{
		Updated:  []string{},
		Inserted: []string{},
		Errors:   []string{},
	}

	for _, record := range canonical {
		outcome, err := s.ledger.Upsert(ctx, record)

		switch {
		case err == nil && outcome == ledger.Updated:
			details.Updated = append(details.Updated, record.ClientCode)
			log.Infof("code %s already in the ledger - fields updated", record.ClientCode)

		case err == nil:
			details.Inserted = append(details.Inserted, record.ClientCode)
			log.Infof("code %s not in the ledger - new row inserted", record.ClientCode)

		default:
			msg := fmt.Sprintf("error processing code %s: %v", record.ClientCode, err)
			details.Errors = append(details.Errors, msg)
			log.Errorf("%s", msg)

			// Without a client code column no code can be processed.
			var schema *ledger.SchemaError
			if errors.As(err, &schema) && schema.Column == ledger.ColClientCode {
				return Result{
					RunID:          runID,
					TotalProcessed: len(canonical),
					ErrorCount:     len(details.Errors),
					Results:        details,
					Error:          msg,
				}
			}
		}
	}

	return Result{
		Success:        true,
		RunID:          runID,
		TotalProcessed: len(canonical),
		UpdatedCount:   len(details.Updated),
		InsertedCount:  len(details.Inserted),
		ErrorCount:     len(details.Errors),
		Results:        details,
	}
}
