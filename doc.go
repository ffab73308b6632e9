/*
Package telemedida-app-sheets synchronizes the nightly metering-device
telemetry from the metersight and app-ops databases into the shared Google
Sheets worksheet used as the operations ledger.

telemedida-app-sheets can be used from the command line but is really intended
to be run from a scheduler (cron, EventBridge, etc.) once per night. For each
unique client code observed in the day's telemetry it either updates the
existing ledger row with the latest meter serial, IP, calibration factor and
brand, or inserts a new row seeded from the row above. Touched rows are
highlighted for human review.

telemedida-app-sheets supports the following commands:

  - sync, to reconcile the day's telemetry with the ledger worksheet
  - version, to display the application version

The ledger worksheet has no locking discipline: at most one invocation may run
at a time.
*/
package telemedida
