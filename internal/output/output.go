package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadline/threadline/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ThreadReport is what the thread command prints: the issue, the viewer and
// the comments loaded so far.
type ThreadReport struct {
	Issue         *core.Issue         `json:"issue"`
	User          *core.User          `json:"user,omitempty"`
	Comments      []core.IssueComment `json:"comments"`
	Remaining     int                 `json:"remaining"`
	LoginRequired bool                `json:"login_required,omitempty"`
}

// Formatter renders command results.
type Formatter interface {
	FormatThread(report *ThreadReport) (string, error)
	FormatRateLimits(limits map[core.RateLimitClass]core.RateLimitState) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// MarshalJSON renders any value as indented JSON.
func MarshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// remainingLabel is the "load more" caption for a thread.
func remainingLabel(report *ThreadReport) string {
	if report.Remaining <= 0 {
		return ""
	}
	if report.Remaining == 1 {
		return "1 hidden item"
	}
	return fmt.Sprintf("%d hidden items", report.Remaining)
}

// summarize flattens a comment body to its first line, cut at max runes.
func summarize(body string, max int) string {
	line := strings.TrimSpace(body)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i]) + " …"
	}
	runes := []rune(line)
	if max > 0 && len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return line
}

func authorLabel(u core.User) string {
	if u.Username == "" {
		return u.Name
	}
	return "@" + u.Username
}
