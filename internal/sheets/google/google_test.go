package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"budgettracker/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the handful of Sheets endpoints the client uses and keeps
// the sheet contents in memory.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]string
	updates []string
	deletes []*gsheet.DimensionRange
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		values := make([][]string, len(f.rows))
		for i, row := range f.rows {
			values[i] = row[:min(2, len(row))]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		for _, row := range vr.Values {
			f.rows = append(f.rows, toStrings(row))
		}
		_, _ = io.WriteString(w, "{}")
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		f.updates = append(f.updates, rng)
		var rowNum int
		if _, err := fmt.Sscanf(rng[strings.Index(rng, "!A")+2:], "%d", &rowNum); err == nil && rowNum > 0 && rowNum <= len(f.rows) {
			f.rows[rowNum-1] = toStrings(vr.Values[0])
		}
		_, _ = io.WriteString(w, "{}")
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			rng := rq.DeleteDimension.Range
			f.deletes = append(f.deletes, rng)
			f.rows = append(f.rows[:rng.StartIndex], f.rows[rng.EndIndex:]...)
		}
		_, _ = io.WriteString(w, "{}")
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"sheets":[{"properties":{"sheetId":0,"title":"Other"}},{"properties":{"sheetId":7,"title":"Transactions"}}]}`)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sid", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleTx(id string, amount float64) core.Transaction {
	return core.Transaction{
		ID:       id,
		Type:     core.Expense,
		Category: core.CategoryFood,
		Amount:   amount,
		Date:     core.NewDate(2024, 5, 2),
		Currency: core.CAD,
	}
}

func TestUpsertAppendsThenUpdates(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.Upsert(ctx, "u1", sampleTx("t1", 10)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if len(fake.rows) != 2 || fake.rows[0][0] != "ID" || fake.rows[1][0] != "t1" {
		t.Fatalf("expected header and one row, got %v", fake.rows)
	}

	if err := c.Upsert(ctx, "u1", sampleTx("t2", 5)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := c.Upsert(ctx, "u1", sampleTx("t1", 42.5)); err != nil {
		t.Fatalf("update upsert: %v", err)
	}
	if len(fake.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(fake.rows))
	}
	if len(fake.updates) != 1 || fake.updates[0] != "Transactions!A2:J2" {
		t.Fatalf("unexpected updates: %v", fake.updates)
	}
	if fake.rows[1][5] != "42.50" {
		t.Fatalf("amount not rewritten: %v", fake.rows[1])
	}
}

func TestDeleteRemovesOnlyMatchingRows(t *testing.T) {
	fake := &fakeSheets{rows: [][]string{
		{"ID", "User"},
		{"t1", "u1"},
		{"t2", "u2"},
		{"t3", "u1"},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.Delete(ctx, "u2", "t1"); err != nil {
		t.Fatalf("delete foreign row: %v", err)
	}
	if len(fake.deletes) != 0 {
		t.Fatalf("row owned by another user must not be deleted")
	}

	if err := c.Delete(ctx, "u1", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.deletes) != 1 || fake.deletes[0].SheetId != 7 || fake.deletes[0].StartIndex != 1 {
		t.Fatalf("unexpected delete ranges: %+v", fake.deletes)
	}

	if err := c.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if len(fake.rows) != 2 || fake.rows[1][0] != "t2" {
		t.Fatalf("unexpected rows: %v", fake.rows)
	}
}

func TestFindRowsSkipsHeader(t *testing.T) {
	rows := [][]string{{"ID", "User"}, {"a", "u1"}, {"b"}, {"c", "u1"}}
	got := findRows(rows, func(r []string) bool { return cell(r, 1) == "u1" })
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("findRows = %v", got)
	}
}

func TestDeleteRequestsBottomUp(t *testing.T) {
	reqs := deleteRequests(3, []int{2, 5, 1})
	var starts []int64
	for _, r := range reqs {
		starts = append(starts, r.DeleteDimension.Range.StartIndex)
	}
	if fmt.Sprint(starts) != "[5 2 1]" {
		t.Fatalf("expected descending order, got %v", starts)
	}
}
