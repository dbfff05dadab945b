package output

import (
	"encoding/json"

	"github.com/threadline/threadline/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatThread renders a thread report as JSON.
func (f *JSONFormatter) FormatThread(report *ThreadReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatRateLimits renders rate limit state keyed by class.
func (f *JSONFormatter) FormatRateLimits(limits map[core.RateLimitClass]core.RateLimitState) (string, error) {
	return f.marshal(limits)
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
