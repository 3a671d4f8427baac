package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ratewatch/ratewatch/internal/core"
)

// TableFormatter renders values as an ASCII table. Now defaults to time.Now.
type TableFormatter struct {
	Now func() time.Time
}

func (f *TableFormatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// FormatStatuses renders live statuses as a table.
func (f *TableFormatter) FormatStatuses(statuses []core.Status) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Domain", "Resets At", "Remaining", "Detected", "URL"})

	for _, s := range statuses {
		t.AppendRow(table.Row{
			s.Domain,
			resetLabel(s.ResetAt),
			remainingLabel(s.RemainingMs),
			formatMillis(s.DetectedAt),
			s.URL,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d rate limited", len(statuses))})
	return t.Render(), nil
}

// FormatRecords renders persisted records as a table.
func (f *TableFormatter) FormatRecords(records []core.RateLimitRecord) (string, error) {
	now := f.now()

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Domain", "Resets At", "Remaining", "Org", "URL"})

	for _, r := range records {
		status := core.StatusOf(r, now)
		t.AppendRow(table.Row{
			r.Domain,
			resetLabel(r.ResetAt),
			remainingLabel(status.RemainingMs),
			r.OrganizationID,
			r.URL,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d records", len(records))})
	return t.Render(), nil
}
