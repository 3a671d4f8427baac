package output

import (
	"fmt"
	"time"
)

// FormatRemaining renders a remaining duration in milliseconds as
// "1h 2m 3s", "2m 5s" or "45s". Zero or less renders as "reset".
func FormatRemaining(ms int64) string {
	if ms <= 0 {
		return "reset"
	}

	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func remainingLabel(ms *int64) string {
	if ms == nil {
		return "unknown"
	}
	return FormatRemaining(*ms)
}

func resetLabel(resetAt *int64) string {
	if resetAt == nil {
		return "unknown"
	}
	return time.Unix(*resetAt, 0).UTC().Format(time.RFC3339)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
