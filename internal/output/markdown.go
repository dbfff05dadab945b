package output

import (
	"fmt"
	"strings"

	"github.com/threadline/threadline/internal/core"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

// FormatThread renders the thread as a Markdown document with one section
// per comment.
func (f *MarkdownFormatter) FormatThread(report *ThreadReport) (string, error) {
	if report == nil || report.Issue == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## #%d %s\n\n", report.Issue.IID, report.Issue.Title))
	sb.WriteString(fmt.Sprintf("%d comments\n", report.Issue.UserNotesCount))

	for _, c := range report.Comments {
		sb.WriteString(fmt.Sprintf("\n### %s commented on %s\n\n", authorLabel(c.Author), formatTime(c.CreatedAt)))
		sb.WriteString(strings.TrimSpace(c.Body))
		sb.WriteString("\n")
	}

	if report.LoginRequired {
		sb.WriteString("\n_Sign in to load comments._\n")
	} else if label := remainingLabel(report); label != "" {
		sb.WriteString(fmt.Sprintf("\n_%s_\n", label))
	}
	return sb.String(), nil
}

// FormatRateLimits renders rate limit state as a Markdown table.
func (f *MarkdownFormatter) FormatRateLimits(limits map[core.RateLimitClass]core.RateLimitState) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Class | Limit | Remaining | Reset |\n")
	sb.WriteString("|-------|-------|-----------|-------|\n")
	for _, class := range sortedClasses(limits) {
		state := limits[class]
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(string(class)),
			quota(state.Limit),
			quota(state.Remaining),
			resetLabel(state.Reset),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
