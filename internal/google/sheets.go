// Package google mirrors the jobs collection into a Google Sheets
// spreadsheet for people who live in spreadsheets. The mirror is eventually
// consistent: the sync worker feeds it one job at a time.
package google

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"curbly/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const jobsRange = "Jobs!A:H"

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string

	cacheMu  sync.RWMutex
	rowCache map[string]int // job ID -> 1-based sheet row
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	s := &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.warmUpCache(warmCtx)
	}()

	return s, nil
}

// TestConnection reads one cell to verify credentials and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Jobs!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets connection test failed: %w", err)
	}
	return nil
}

// UpsertJob writes the job into its existing row or appends a new one.
func (s *SheetsService) UpsertJob(ctx context.Context, job *models.Job) error {
	values := []any{
		job.ID, job.Status, job.HostID, job.WorkerID, job.Address,
		job.CreatedAt.Format(time.RFC3339),
		formatOptional(job.CompletedAt), formatOptional(job.CancelledAt),
	}

	s.cacheMu.RLock()
	row, known := s.rowCache[job.ID]
	s.cacheMu.RUnlock()

	if known {
		writeRange := fmt.Sprintf("Jobs!A%d:H%d", row, row)
		_, err := s.service.Spreadsheets.Values.
			Update(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: [][]any{values}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update job row %d: %w", row, err)
		}
		return nil
	}

	resp, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, jobsRange, &sheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append job row: %w", err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		if row, ok := parseRowFromRange(resp.Updates.UpdatedRange); ok {
			s.cacheMu.Lock()
			s.rowCache[job.ID] = row
			s.cacheMu.Unlock()
		}
	}
	return nil
}

// warmUpCache loads job-ID to row mappings from column A.
func (s *SheetsService) warmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Jobs!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// parseRowFromRange extracts the row number from a range like Jobs!A12:H12.
func parseRowFromRange(updatedRange string) (int, bool) {
	var row int
	for i := len(updatedRange) - 1; i >= 0; i-- {
		c := updatedRange[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if _, err := fmt.Sscanf(updatedRange[i+1:], "%d", &row); err != nil {
			return 0, false
		}
		return row, row > 0
	}
	return 0, false
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
