// Package export renders archived jobs into an xlsx workbook for admins.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"curbly/internal/domain"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Jobs"

// Exporter writes xlsx reports of the job archive.
type Exporter struct {
	archive domain.Archiver
	dir     string
}

func New(archive domain.Archiver, dir string) *Exporter {
	return &Exporter{archive: archive, dir: dir}
}

// Export writes archived jobs since the given time into a timestamped
// workbook and returns its path.
func (e *Exporter) Export(ctx context.Context, since time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	jobs, err := e.archive.ListArchived(ctx, "", since)
	if err != nil {
		return "", fmt.Errorf("load archived jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Status", "Host", "Worker", "Address", "Created", "Accepted", "Completed", "Cancelled", "Cancelled By", "Reason"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", last, headerStyle)

	for row, job := range jobs {
		values := []any{
			job.ID, job.Status, job.HostID, job.WorkerID, job.Address,
			job.CreatedAt.Format("2006-01-02 15:04"),
			formatTime(job.AcceptedAt), formatTime(job.CompletedAt), formatTime(job.CancelledAt),
			job.CancelledBy, job.CancellationReason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 36)
	_ = f.SetColWidth(sheetName, "B", "K", 20)

	path := filepath.Join(e.dir, fmt.Sprintf("jobs_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
