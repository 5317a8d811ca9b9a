package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/good-yellow-bee/climalert/internal/models"
)

// ExportFormat defines the output format for exports.
type ExportFormat string

const (
	ExportJSON  ExportFormat = "json"
	ExportJSONL ExportFormat = "jsonl"
	ExportCSV   ExportFormat = "csv"
)

// ParseExportFormat parses a string to ExportFormat.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch s {
	case "json":
		return ExportJSON, true
	case "jsonl", "ndjson":
		return ExportJSONL, true
	case "csv":
		return ExportCSV, true
	default:
		return "", false
	}
}

var csvHeader = []string{"timestamp", "city", "uf", "temperature", "humidity", "description"}

// Exporter writes alerts in one format.
type Exporter struct {
	format ExportFormat
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// Export writes alerts in the configured format.
func (e *Exporter) Export(alerts []models.AlertEvent) error {
	switch e.format {
	case ExportCSV:
		return e.exportCSV(alerts)
	case ExportJSONL:
		return e.exportJSONL(alerts)
	default:
		encoder := json.NewEncoder(e.writer)
		encoder.SetIndent("", "  ")
		if alerts == nil {
			alerts = []models.AlertEvent{}
		}
		return encoder.Encode(alerts)
	}
}

func (e *Exporter) exportJSONL(alerts []models.AlertEvent) error {
	encoder := json.NewEncoder(e.writer)
	for _, ev := range alerts {
		if err := encoder.Encode(ev); err != nil {
			return fmt.Errorf("encode alert: %w", err)
		}
	}
	return nil
}

func (e *Exporter) exportCSV(alerts []models.AlertEvent) error {
	w := csv.NewWriter(e.writer)

	w.Write(csvHeader)
	for _, ev := range alerts {
		w.Write([]string{
			ev.OccurredAt.UTC().Format(time.RFC3339),
			ev.CityName,
			ev.RegionCode,
			ev.TemperatureSummary,
			ev.Humidity,
			ev.Description,
		})
	}

	w.Flush()
	return w.Error()
}
