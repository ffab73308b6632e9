package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/biaops/telemedida-app-sheets/config"
	"github.com/biaops/telemedida-app-sheets/db"
	"github.com/biaops/telemedida-app-sheets/ledger"
	"github.com/biaops/telemedida-app-sheets/telemedida"
	"github.com/biaops/telemedida-app-sheets/telemetry"
)

var SyncCmd = Sync{
	date:  "",
	force: false,
	json:  false,
}

type Sync struct {
	date  string
	force bool
	json  bool
	debug bool
}

func (cmd *Sync) Name() string {
	return "sync"
}

func (cmd *Sync) Description() string {
	return "Synchronizes the nightly meter telemetry with the Google Sheets ledger"
}

func (cmd *Sync) Usage() string {
	return "[--date <yyyy-mm-dd>] [--force] [--json]"
}

func (cmd *Sync) Help() {
	fmt.Println()
	fmt.Printf("  Usage: %s [--debug] [--config <configuration>] sync [options]\n", APP)
	fmt.Println()
	fmt.Println("  Reads the day's meter telemetry from the metersight and app-ops databases and")
	fmt.Println("  updates or inserts the matching rows in the ledger worksheet")
	fmt.Println()

	helpOptions(cmd.FlagSet())

	fmt.Println()
	fmt.Println("  Examples:")
	fmt.Println(`    telemedida-app-sheets sync`)
	fmt.Println(`    telemedida-app-sheets --config telemedida.yaml sync --date 2025-10-26 --json`)
	fmt.Println()
}

func (cmd *Sync) FlagSet() *flag.FlagSet {
	flagset := flag.NewFlagSet("sync", flag.ExitOnError)

	flagset.StringVar(&cmd.date, "date", cmd.date, "Extraction window start date (yyyy-mm-dd). Defaults to 'now'")
	flagset.BoolVar(&cmd.force, "force", cmd.force, "Forces an update of all records (reserved, currently a no-op)")
	flagset.BoolVar(&cmd.json, "json", cmd.json, "Writes the run result to stdout as JSON")

	return flagset
}

func (cmd *Sync) Execute(args ...any) error {
	options := args[0].(*Options)

	cmd.debug = options.Debug

	cfg := config.NewConfig()
	if err := cfg.Load(options.Config); err != nil {
		return err
	}

	asOf := time.Now().In(telemetry.Local)
	if strings.TrimSpace(cmd.date) != "" {
		date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(cmd.date), telemetry.Local)
		if err != nil {
			return fmt.Errorf("invalid date '%s' - expected something like '2025-10-26'", cmd.date)
		}

		asOf = date
	}

	logger, err := newLogger(cfg.LogLevel, cmd.debug)
	if err != nil {
		return err
	}

	defer logger.Sync()

	log := logger.Sugar()
	ctx := context.Background()

	// ... telemetry databases
	metersight, err := db.Open(ctx, cfg.MetersightDSN())
	if err != nil {
		return fmt.Errorf("metersight: %w", err)
	}

	defer metersight.Close()

	appops, err := db.Open(ctx, cfg.AppOpsDSN())
	if err != nil {
		return fmt.Errorf("app-ops: %w", err)
	}

	defer appops.Close()

	// ... ledger worksheet
	credentials := []byte(cfg.Sheets.CredentialsJSON)
	if len(credentials) == 0 {
		if credentials, err = os.ReadFile(cfg.Sheets.Credentials); err != nil {
			return fmt.Errorf("unable to read credentials file (%v)", err)
		}
	}

	store, err := ledger.NewGoogleSheets(ctx, credentials, cfg.Sheets.SpreadsheetID, cfg.Sheets.Worksheet, cfg.Sheets.Retries, log)
	if err != nil {
		return err
	}

	sheet, err := ledger.NewLedger(store, cfg.Sheets.CarryForward, cfg.Sheets.Highlight, log)
	if err != nil {
		return err
	}

	// ... run
	extractor := telemetry.NewExtractor(metersight, appops, cfg.DB.AppOpsDBLink, log)
	service := telemedida.NewService(extractor, sheet, log)

	result := service.Run(ctx, asOf, cmd.force)

	if cmd.json {
		if err := writeResult(os.Stdout, result); err != nil {
			return err
		}
	}

	if !result.Success {
		return fmt.Errorf("synchronization failed (%s)", result.Error)
	}

	log.Infof("total:%v  updated:%v  inserted:%v  errors:%v",
		result.TotalProcessed,
		result.UpdatedCount,
		result.InsertedCount,
		result.ErrorCount)

	for _, e := range result.Results.Errors {
		log.Warnf("%s", e)
	}

	return nil
}

func writeResult(w io.Writer, result telemedida.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("error writing synchronization result (%v)", err)
	}

	return nil
}
