package output

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/threadline/threadline/internal/core"
)

const commentColumnWidth = 72

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatThread renders the issue header and comment timeline.
func (f *TableFormatter) FormatThread(report *ThreadReport) (string, error) {
	if report == nil || report.Issue == nil {
		return "", nil
	}

	issue := report.Issue
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s\n", issue.IID, issue.Title)
	fmt.Fprintf(&sb, "%s, %d comments", issue.State, issue.UserNotesCount)
	if issue.Confidential {
		sb.WriteString(", confidential")
	}
	if report.User != nil {
		fmt.Fprintf(&sb, ", signed in as %s", authorLabel(*report.User))
	}
	sb.WriteString("\n")

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Author", "Date", "Comment"})

	for i, c := range report.Comments {
		t.AppendRow(table.Row{
			i + 1,
			authorLabel(c.Author),
			formatTime(c.CreatedAt),
			summarize(c.Body, commentColumnWidth),
		})
	}

	footer := remainingLabel(report)
	if report.LoginRequired {
		footer = "sign in to load comments"
	}
	if footer != "" {
		t.AppendFooter(table.Row{"", "", "", footer})
	}

	sb.WriteString(t.Render())
	return sb.String(), nil
}

// FormatRateLimits renders one row per quota class.
func (f *TableFormatter) FormatRateLimits(limits map[core.RateLimitClass]core.RateLimitState) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Class", "Limit", "Remaining", "Reset"})

	for _, class := range sortedClasses(limits) {
		state := limits[class]
		t.AppendRow(table.Row{
			string(class),
			quota(state.Limit),
			quota(state.Remaining),
			resetLabel(state.Reset),
		})
	}
	return t.Render(), nil
}

func sortedClasses(limits map[core.RateLimitClass]core.RateLimitState) []core.RateLimitClass {
	classes := make([]core.RateLimitClass, 0, len(limits))
	for class := range limits {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	return classes
}

func quota(n int) string {
	if n == math.MaxInt {
		return "unknown"
	}
	return fmt.Sprintf("%d", n)
}

func resetLabel(epoch int64) string {
	if epoch <= 0 {
		return "-"
	}
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
