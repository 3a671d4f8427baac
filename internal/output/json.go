package output

import (
	"encoding/json"

	"github.com/ratewatch/ratewatch/internal/core"
)

// JSONFormatter renders values as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatStatuses renders statuses as a JSON array.
func (f *JSONFormatter) FormatStatuses(statuses []core.Status) (string, error) {
	if statuses == nil {
		statuses = []core.Status{}
	}
	return f.marshal(statuses)
}

// recordView keeps the domain, which the persisted form carries in its key.
type recordView struct {
	Domain string `json:"domain"`
	core.RateLimitRecord
}

// FormatRecords renders records as a JSON array.
func (f *JSONFormatter) FormatRecords(records []core.RateLimitRecord) (string, error) {
	views := make([]recordView, 0, len(records))
	for _, r := range records {
		views = append(views, recordView{Domain: r.Domain, RateLimitRecord: r})
	}
	return f.marshal(views)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
