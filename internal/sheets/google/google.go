package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"budgettracker/internal/core"
	ports "budgettracker/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const lastColumn = "J"

// Config selects the spreadsheet and the service account used to write it.
// CredentialsJSON wins over CredentialsFile; when both are empty
// GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors transactions into a single sheet, one row per transaction.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *slog.Logger

	// row indices shift on every write; operations are serialized
	mu      sync.Mutex
	sheetID *int64
}

var _ ports.TransactionMirror = (*Client)(nil)

// New creates a Sheets client using Service Account credentials.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *slog.Logger) *Client {
	if sheetName == "" {
		sheetName = "Transactions"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheetName, logger: logger}
}

func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	credsJSON := strings.TrimSpace(cfg.CredentialsJSON)
	credsFile := strings.TrimSpace(cfg.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentials []byte
	switch {
	case credsJSON != "":
		credentials = []byte(credsJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentials),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// Upsert rewrites the row holding tx.ID, or appends one when none exists.
// An empty sheet gets the header row first.
func (c *Client) Upsert(ctx context.Context, userID string, tx core.Transaction) error {
	if tx.ID == "" {
		return errors.New("transaction id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readKeys(ctx)
	if err != nil {
		return err
	}

	values := [][]interface{}{toInterfaces(ports.Row(userID, tx))}
	if idx := findRows(rows, func(r []string) bool { return cell(r, 0) == tx.ID }); len(idx) > 0 {
		rowNum := idx[0] + 1
		rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, rowNum, lastColumn, rowNum)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", rowNum, err)
		}
		c.logger.DebugContext(ctx, "Updated mirrored transaction", "transaction_id", tx.ID, "row", rowNum)
		return nil
	}

	if len(rows) == 0 {
		values = append([][]interface{}{toInterfaces(ports.Header)}, values...)
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	c.logger.DebugContext(ctx, "Appended mirrored transaction", "transaction_id", tx.ID)
	return nil
}

// Delete removes the row for id. A missing row is not an error.
func (c *Client) Delete(ctx context.Context, userID, id string) error {
	return c.deleteWhere(ctx, func(r []string) bool {
		return cell(r, 0) == id && cell(r, 1) == userID
	})
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.deleteWhere(ctx, func(r []string) bool { return cell(r, 1) == userID })
}

func (c *Client) deleteWhere(ctx context.Context, match func([]string) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readKeys(ctx)
	if err != nil {
		return err
	}
	idx := findRows(rows, match)
	if len(idx) == 0 {
		return nil
	}
	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: deleteRequests(sheetID, idx)}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete %d rows: %w", len(idx), err)
	}
	c.logger.DebugContext(ctx, "Deleted mirrored rows", "count", len(idx))
	return nil
}

// readKeys returns the ID and user columns of every row, header included.
func (c *Client) readKeys(ctx context.Context) ([][]string, error) {
	rng := fmt.Sprintf("%s!A:B", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheet {
			id := s.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheet)
}

// findRows returns the zero-based indices of matching rows, skipping the header.
func findRows(rows [][]string, match func([]string) bool) []int {
	var out []int
	for i, r := range rows {
		if i == 0 && cell(r, 0) == ports.Header[0] {
			continue
		}
		if match(r) {
			out = append(out, i)
		}
	}
	return out
}

// deleteRequests deletes bottom-up so earlier indices stay valid.
func deleteRequests(sheetID int64, idx []int) []*gsheet.Request {
	sorted := append([]int(nil), idx...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	reqs := make([]*gsheet.Request, 0, len(sorted))
	for _, i := range sorted {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(i),
					EndIndex:        int64(i + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		})
	}
	return reqs
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
