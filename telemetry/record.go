// Package telemetry retrieves and reconciles the nightly meter readings from
// the metersight and app-ops databases.
package telemetry

import (
	"time"
)

// Local is the fixed offset for the operating region. Source timestamps are
// stored at UTC and normalized to UTC-5 before filtering and reporting.
var Local = time.FixedZone("UTC-5", -5*60*60)

// Record is a single meter reading, normalized to the shared schema. Both
// sources produce the same shape after the column mapping applied at scan
// time.
type Record struct {
	ReadTimestampLocal time.Time
	UserIdentifier     string
	Success            bool
	Error              string
	ClientCode         string
	MeterFactor        int
	Brand              string
	Serial             string
	IP                 string
}
