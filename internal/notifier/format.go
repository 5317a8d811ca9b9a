package notifier

import (
	"strings"

	"github.com/good-yellow-bee/climalert/internal/models"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// weatherEmoji picks an icon from keywords in the alert description.
func weatherEmoji(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "tempestade"), strings.Contains(d, "trovo"), strings.Contains(d, "storm"):
		return "⛈️" // thunder cloud and rain
	case strings.Contains(d, "chuva"), strings.Contains(d, "rain"):
		return "\U0001F327️" // cloud with rain
	case strings.Contains(d, "neve"), strings.Contains(d, "geada"), strings.Contains(d, "snow"), strings.Contains(d, "frost"):
		return "❄️" // snowflake
	case strings.Contains(d, "calor"), strings.Contains(d, "sol"), strings.Contains(d, "heat"):
		return "☀️" // sun
	case strings.Contains(d, "vento"), strings.Contains(d, "wind"):
		return "\U0001F32C️" // wind face
	default:
		return "\U0001F326️" // sun behind rain cloud
	}
}

func title(ev models.AlertEvent) string {
	return weatherEmoji(ev.Description) + " Weather alert: " + ev.Location()
}

// truncate truncates a string to max bytes with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
