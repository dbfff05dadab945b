package core

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// PageAttributes are the parameters a host document passes to the widget.
type PageAttributes struct {
	ProjectID   int64
	IssueTerm   string
	IssueNumber int64
	Origin      string
	URL         string
	Title       string
	Description string
	Label       string
	Theme       string
	Session     string
}

// DefaultTheme is used when the host document does not pick one.
const DefaultTheme = "github-light"

// issueTermSources are issue-term values that name another parameter holding
// the real search term.
var issueTermSources = map[string]bool{
	"title":    true,
	"url":      true,
	"pathname": true,
	"og:title": true,
}

// ParsePageAttributes validates widget parameters. Exactly one of issue-term
// and issue-number selects the issue; projectid and origin are required.
func ParsePageAttributes(params url.Values) (*PageAttributes, error) {
	attrs := &PageAttributes{
		Origin:      params.Get("origin"),
		URL:         params.Get("url"),
		Title:       params.Get("title"),
		Description: params.Get("description"),
		Label:       params.Get("label"),
		Theme:       params.Get("theme"),
		Session:     params.Get("session"),
	}
	if attrs.Theme == "" {
		attrs.Theme = DefaultTheme
	}

	switch {
	case params.Has("issue-term"):
		term := params.Get("issue-term")
		if term == "" {
			return nil, errors.New("when issue-term is specified, it cannot be blank")
		}
		if issueTermSources[term] {
			if params.Get(term) == "" {
				return nil, fmt.Errorf("unable to find %q metadata", term)
			}
			term = params.Get(term)
		}
		attrs.IssueTerm = term
	case params.Has("issue-number"):
		raw := params.Get("issue-number")
		number, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || strconv.FormatInt(number, 10) != raw {
			return nil, fmt.Errorf("issue-number is invalid: %q", raw)
		}
		attrs.IssueNumber = number
	default:
		return nil, errors.New(`"issue-term" or "issue-number" must be specified`)
	}

	if !params.Has("projectid") {
		return nil, errors.New(`"projectid" is required`)
	}
	if !params.Has("origin") {
		return nil, errors.New(`"origin" is required`)
	}

	projectID, err := strconv.ParseInt(params.Get("projectid"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid projectid: %q", params.Get("projectid"))
	}
	attrs.ProjectID = projectID

	return attrs, nil
}

// ByNumber reports whether the issue is addressed by number rather than term.
func (a *PageAttributes) ByNumber() bool {
	return a != nil && a.IssueTerm == ""
}
