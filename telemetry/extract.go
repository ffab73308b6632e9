package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExtractionError is returned when either source query fails. Extraction is
// all-or-nothing: a failed query aborts the whole run with no partial results.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("error extracting data from %s (%v)", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

const queryMetersight = `
SELECT
    read_timestamp - interval '5 hour' AS read_timestamp_local,
    user_email,
    success,
    error,
    client_number,
    meter_factor,
    brand,
    serial,
    ip
FROM cgm.metersight
WHERE read_timestamp - interval '5 hour' >= $1
  AND read_timestamp - interval '5 hour' < $1 + interval '1 day'`

// The app-ops readings live in a separate reporting database reached over
// dblink; the conninfo string is supplied by configuration.
const queryAppOps = `
WITH info_visit AS (
    SELECT * FROM visits
),
meter_reading AS (
    SELECT *
    FROM dblink(
        '%s',
        $$
            SELECT
                visit_id,
                read_timestamp,
                user_id,
                success,
                error,
                meter_factor,
                brand,
                serial,
                ip
            FROM telemetry.meter_readings
        $$
    ) AS t (
        visit_id       TEXT,
        read_timestamp TIMESTAMP,
        user_id        TEXT,
        success        BOOLEAN,
        error          TEXT,
        meter_factor   INTEGER,
        brand          TEXT,
        serial         TEXT,
        ip             TEXT
    )
)
SELECT
    read_timestamp - interval '5 hour' AS read_timestamp_local,
    user_id,
    success,
    error,
    internal_bia_code,
    meter_factor,
    brand,
    serial,
    ip
FROM meter_reading mr
LEFT JOIN info_visit iv
    ON iv.id::TEXT = mr.visit_id::TEXT
WHERE read_timestamp - interval '5 hour' >= $1
  AND read_timestamp - interval '5 hour' < $1 + interval '1 day'`

// Extractor issues the two time-windowed telemetry queries.
type Extractor struct {
	metersight *sql.DB
	appops     *sql.DB
	dblink     string
	log        *zap.SugaredLogger
}

func NewExtractor(metersight, appops *sql.DB, dblink string, log *zap.SugaredLogger) *Extractor {
	return &Extractor{
		metersight: metersight,
		appops:     appops,
		dblink:     dblink,
		log:        log,
	}
}

// Extract returns the readings from both sources for the window
// [asOf, asOf+24h) at the UTC-5 offset. Failure of either query is fatal to
// the whole run.
func (x *Extractor) Extract(ctx context.Context, asOf time.Time) ([]Record, []Record, error) {
	start := windowStart(asOf)

	metersight, err := x.query(ctx, x.metersight, queryMetersight, start)
	if err != nil {
		return nil, nil, &ExtractionError{Source: "metersight", Err: err}
	}

	x.log.Infof("metersight query returned %d records", len(metersight))

	appops, err := x.query(ctx, x.appops, fmt.Sprintf(queryAppOps, x.dblink), start)
	if err != nil {
		return nil, nil, &ExtractionError{Source: "app-ops", Err: err}
	}

	x.log.Infof("app-ops query returned %d records", len(appops))

	return metersight, appops, nil
}

func (x *Extractor) query(ctx context.Context, pool *sql.DB, query string, start time.Time) ([]Record, error) {
	rows, err := pool.QueryContext(ctx, query, start)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	records := []Record{}

	for rows.Next() {
		var timestamp time.Time
		var user, errmsg, code, brand, serial, ip sql.NullString
		var success sql.NullBool
		var factor sql.NullInt64

		if err := rows.Scan(&timestamp, &user, &success, &errmsg, &code, &factor, &brand, &serial, &ip); err != nil {
			return nil, err
		}

		// An unvisited reading has no client code (LEFT JOIN) and can never
		// be reconciled against the ledger.
		if strings.TrimSpace(code.String) == "" {
			x.log.Warnf("skipping reading at %v with blank client code", timestamp)
			continue
		}

		records = append(records, Record{
			ReadTimestampLocal: localize(timestamp),
			UserIdentifier:     user.String,
			Success:            success.Bool,
			Error:              errmsg.String,
			ClientCode:         strings.TrimSpace(code.String),
			MeterFactor:        int(factor.Int64),
			Brand:              brand.String,
			Serial:             serial.String,
			IP:                 ip.String,
		})
	}

	return records, rows.Err()
}

// windowStart truncates asOf to midnight of its UTC-5 calendar date. The
// queries compare naive local timestamps, so only the wall clock is sent.
func windowStart(asOf time.Time) time.Time {
	local := asOf.In(Local)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// localize reinterprets the wall clock of a scanned read_timestamp_local in
// the UTC-5 offset. The query has already shifted the stored timestamp, but
// the driver labels the naive value as UTC, so converting the instant would
// shift the clock a second time.
func localize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Local)
}
