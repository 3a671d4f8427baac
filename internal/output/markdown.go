package output

import (
	"fmt"
	"strings"

	"github.com/ratewatch/ratewatch/internal/core"
)

// MarkdownFormatter renders values as a markdown table.
type MarkdownFormatter struct{}

// FormatStatuses renders live statuses as Markdown.
func (f *MarkdownFormatter) FormatStatuses(statuses []core.Status) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Rate limits\n\n")
	if len(statuses) == 0 {
		sb.WriteString("No active rate limits.\n")
		return sb.String(), nil
	}

	sb.WriteString("| Domain | Resets At | Remaining | URL |\n")
	sb.WriteString("|--------|-----------|-----------|-----|\n")
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(s.Domain),
			escapeMarkdownCell(resetLabel(s.ResetAt)),
			escapeMarkdownCell(remainingLabel(s.RemainingMs)),
			escapeMarkdownCell(s.URL),
		))
	}
	return sb.String(), nil
}

// FormatRecords renders persisted records as Markdown.
func (f *MarkdownFormatter) FormatRecords(records []core.RateLimitRecord) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Stored records\n\n")
	sb.WriteString("| Domain | Resets At | Org | URL |\n")
	sb.WriteString("|--------|-----------|-----|-----|\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(r.Domain),
			escapeMarkdownCell(resetLabel(r.ResetAt)),
			escapeMarkdownCell(r.OrganizationID),
			escapeMarkdownCell(r.URL),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
