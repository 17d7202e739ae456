package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/internal/models"
	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
	"github.com/tutorbase/schedule-api/pkg/export"
)

type weekProvider interface {
	Week(ctx context.Context, teacherID, date string) (*models.Week, error)
}

// ExportFormat names a supported download format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a teacher's week grid as a downloadable document.
type ExportService struct {
	weeks  weekProvider
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(weeks weekProvider, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		weeks:  weeks,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// RenderWeek builds the week grid and renders it in the requested format.
func (s *ExportService) RenderWeek(ctx context.Context, teacherID, date string, format ExportFormat) (*ExportResult, error) {
	week, err := s.weeks.Week(ctx, teacherID, date)
	if err != nil {
		return nil, err
	}

	table := weekTable(week)
	title := fmt.Sprintf("Schedule week of %s", week.WeekStart)
	filename := fmt.Sprintf("schedule-%s-%s", teacherID, week.WeekStart)

	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: filename + ".csv"}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(table, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: filename + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// weekTable flattens the grid into one row per time slot, one column per day.
func weekTable(week *models.Week) export.Table {
	headers := make([]string, 0, len(week.Days)+1)
	headers = append(headers, "Time")
	for _, day := range week.Days {
		headers = append(headers, fmt.Sprintf("%s %s", day.Weekday[:3], day.Date))
	}

	rows := make([]map[string]string, 0, len(week.TimeRows))
	for i, timeRow := range week.TimeRows {
		row := map[string]string{"Time": timeRow}
		for d, day := range week.Days {
			if i < len(day.Cells) {
				row[headers[d+1]] = cellSummary(day.Cells[i])
			}
		}
		rows = append(rows, row)
	}
	return export.Table{Headers: headers, Rows: rows}
}

func cellSummary(cell models.Cell) string {
	switch cell.State {
	case models.CellAvailable:
		return "available"
	case models.CellOccupied:
		if cell.Booking == nil {
			return "booked"
		}
		return fmt.Sprintf("%s (%s)", cell.Booking.Subject, strings.ToLower(string(cell.Booking.EffectiveStatus)))
	default:
		return ""
	}
}
