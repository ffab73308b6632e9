package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const retryDelay = 500 * time.Millisecond

// GoogleSheets is the Google Sheets backed Store implementation. All
// operations address the single worksheet resolved at construction, and are
// retried with a doubling backoff on rate-limit and server errors.
type GoogleSheets struct {
	google        *sheets.Service
	spreadsheetID string
	worksheet     string
	sheetID       int64
	retries       int
	log           *zap.SugaredLogger
}

// NewGoogleSheets authorizes with the service account credentials and
// resolves the worksheet by title.
func NewGoogleSheets(ctx context.Context, credentials []byte, spreadsheetID, worksheet string, retries int, log *zap.SugaredLogger) (*GoogleSheets, error) {
	client, err := authorize(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("authentication/authorization error (%v)", err)
	}

	google, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create new Sheets client (%v)", err)
	}

	spreadsheet, err := google.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spreadsheet (%v)", err)
	}

	sheet, err := getSheet(spreadsheet, worksheet)
	if err != nil {
		return nil, err
	}

	if retries < 1 {
		retries = 1
	}

	return &GoogleSheets{
		google:        google,
		spreadsheetID: spreadsheetID,
		worksheet:     sheet.Properties.Title,
		sheetID:       sheet.Properties.SheetId,
		retries:       retries,
		log:           log,
	}, nil
}

func authorize(ctx context.Context, credentials []byte) (*http.Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentials, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}

	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func getSheet(spreadsheet *sheets.Spreadsheet, worksheet string) (*sheets.Sheet, error) {
	for _, sheet := range spreadsheet.Sheets {
		if strings.EqualFold(strings.TrimSpace(sheet.Properties.Title), strings.TrimSpace(worksheet)) {
			return sheet, nil
		}
	}

	return nil, fmt.Errorf("unable to identify worksheet '%s'", worksheet)
}

func (g *GoogleSheets) Header(ctx context.Context) ([]string, error) {
	rows, err := g.get(ctx, fmt.Sprintf("'%s'!1:1", g.worksheet))
	if err != nil {
		return nil, &RowStoreError{Op: "header read", Err: err}
	}

	if len(rows) == 0 {
		return []string{}, nil
	}

	header := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		header[i] = fmt.Sprintf("%v", v)
	}

	return header, nil
}

func (g *GoogleSheets) Column(ctx context.Context, col int) ([]string, error) {
	letter := colName(col)

	rows, err := g.get(ctx, fmt.Sprintf("'%s'!%s:%s", g.worksheet, letter, letter))
	if err != nil {
		return nil, &RowStoreError{Op: fmt.Sprintf("column %s read", letter), Err: err}
	}

	values := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			values[i] = fmt.Sprintf("%v", row[0])
		}
	}

	return values, nil
}

func (g *GoogleSheets) Find(ctx context.Context, col int, value string) (int, bool, error) {
	values, err := g.Column(ctx, col)
	if err != nil {
		return 0, false, err
	}

	for i, v := range values {
		if v == value {
			return i + 1, true, nil
		}
	}

	return 0, false, nil
}

func (g *GoogleSheets) ReadCell(ctx context.Context, row, col int) (string, error) {
	rows, err := g.get(ctx, g.cell(row, col))
	if err != nil {
		return "", &RowStoreError{Op: fmt.Sprintf("cell %s%d read", colName(col), row), Err: err}
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil
	}

	return fmt.Sprintf("%v", rows[0][0]), nil
}

func (g *GoogleSheets) WriteCell(ctx context.Context, row, col int, value string) error {
	values := sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}

	err := g.do(func() error {
		_, err := g.google.Spreadsheets.Values.Update(g.spreadsheetID, g.cell(row, col), &values).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()

		return err
	})

	if err != nil {
		return &RowStoreError{Op: fmt.Sprintf("cell %s%d write", colName(col), row), Err: err}
	}

	return nil
}

func (g *GoogleSheets) InsertRow(ctx context.Context, row int) error {
	rq := sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				InsertDimension: &sheets.InsertDimensionRequest{
					Range: &sheets.DimensionRange{
						SheetId:    g.sheetID,
						Dimension:  "ROWS",
						StartIndex: int64(row - 1),
						EndIndex:   int64(row),
					},
					InheritFromBefore: false,
				},
			},
		},
	}

	err := g.do(func() error {
		_, err := g.google.Spreadsheets.BatchUpdate(g.spreadsheetID, &rq).Context(ctx).Do()
		return err
	})

	if err != nil {
		return &RowStoreError{Op: fmt.Sprintf("row %d insert", row), Err: err}
	}

	return nil
}

func (g *GoogleSheets) CopyRange(ctx context.Context, src, dst Range) error {
	rq := sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				CopyPaste: &sheets.CopyPasteRequest{
					Source:           g.grid(src),
					Destination:      g.grid(dst),
					PasteType:        "PASTE_NORMAL",
					PasteOrientation: "NORMAL",
				},
			},
		},
	}

	err := g.do(func() error {
		_, err := g.google.Spreadsheets.BatchUpdate(g.spreadsheetID, &rq).Context(ctx).Do()
		return err
	})

	if err != nil {
		return &RowStoreError{Op: "range copy", Err: err}
	}

	return nil
}

func (g *GoogleSheets) Paint(ctx context.Context, area Range, color Color) error {
	rq := sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: g.grid(area),
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor: &sheets.Color{
								Red:   color.Red,
								Green: color.Green,
								Blue:  color.Blue,
							},
						},
					},
					Fields: "userEnteredFormat.backgroundColor",
				},
			},
		},
	}

	err := g.do(func() error {
		_, err := g.google.Spreadsheets.BatchUpdate(g.spreadsheetID, &rq).Context(ctx).Do()
		return err
	})

	if err != nil {
		return &RowStoreError{Op: "range paint", Err: err}
	}

	return nil
}

func (g *GoogleSheets) get(ctx context.Context, area string) ([][]interface{}, error) {
	var response *sheets.ValueRange

	err := g.do(func() error {
		r, err := g.google.Spreadsheets.Values.Get(g.spreadsheetID, area).Context(ctx).Do()
		if err != nil {
			return err
		}

		response = r
		return nil
	})

	if err != nil {
		return nil, err
	}

	return response.Values, nil
}

// do invokes a Sheets API call, retrying rate-limit and server errors with a
// doubling backoff.
func (g *GoogleSheets) do(call func() error) error {
	delay := retryDelay

	var err error
	for attempt := 1; attempt <= g.retries; attempt++ {
		if err = call(); err == nil {
			return nil
		}

		if !retryable(err) || attempt == g.retries {
			break
		}

		g.log.Warnf("transient Sheets API error, retrying in %v (%v)", delay, err)
		time.Sleep(delay)
		delay *= 2
	}

	return err
}

func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}

	return false
}

func (g *GoogleSheets) cell(row, col int) string {
	return fmt.Sprintf("'%s'!%s%d", g.worksheet, colName(col), row)
}

func (g *GoogleSheets) grid(r Range) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          g.sheetID,
		StartRowIndex:    int64(r.Top - 1),
		EndRowIndex:      int64(r.Bottom),
		StartColumnIndex: int64(r.Left - 1),
		EndColumnIndex:   int64(r.Right),
	}
}
