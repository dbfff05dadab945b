package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadline/threadline/internal/core"
	"github.com/threadline/threadline/internal/core/tracker"
)

var (
	// ErrOriginNotPermitted is returned when the host origin is missing from
	// the project's repo config.
	ErrOriginNotPermitted = errors.New("origin not permitted")
	// ErrConfidentialIssue is returned when submitting to a confidential
	// issue, which is read-only for the widget.
	ErrConfidentialIssue = errors.New("issue is confidential")
)

// IssueService is the slice of the tracker client a thread needs.
type IssueService interface {
	PageLoader
	LoadIssueByNumber(ctx context.Context, iid int64) (*core.Issue, error)
	LoadIssueByTerm(ctx context.Context, term string) (*core.Issue, error)
	LoadUser(ctx context.Context) (*core.User, error)
	LoadRepoConfig(ctx context.Context) (*core.RepoConfig, error)
	CreateIssue(ctx context.Context, issue tracker.NewIssue) (*core.Issue, error)
	PostComment(ctx context.Context, iid int64, markdown string) (*core.IssueComment, error)
}

// Thread runs the widget flow for one host document.
type Thread struct {
	Service IssueService
	Page    *core.PageAttributes
	Logger  *logging.Logger

	issue     *core.Issue
	user      *core.User
	paginator *Paginator
}

// ThreadView is what a thread shows after Load.
type ThreadView struct {
	Issue *core.Issue
	User  *core.User
	Pages []*tracker.CommentPage
	// LoginRequired is set when comments could not be listed anonymously.
	LoginRequired bool
}

// NewThread returns a Thread for page backed by service.
func NewThread(service IssueService, page *core.PageAttributes, logger *logging.Logger) (*Thread, error) {
	if service == nil {
		return nil, errors.New("issue service is required")
	}
	if page == nil {
		return nil, errors.New("page attributes are required")
	}
	return &Thread{Service: service, Page: page, Logger: logger}, nil
}

// Load fetches the issue and the signed-in user concurrently, then the eager
// comment pages when the issue has any.
func (t *Thread) Load(ctx context.Context) (*ThreadView, error) {
	var issue *core.Issue
	var user *core.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		issue, err = t.loadIssue(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = t.Service.LoadUser(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.issue = issue
	t.user = user
	view := &ThreadView{Issue: issue, User: user}
	if issue == nil || issue.UserNotesCount == 0 {
		return view, nil
	}

	t.paginator = NewPaginator(t.Service, issue.IID, issue.UserNotesCount)
	pages, err := t.paginator.LoadInitial(ctx)
	if errors.Is(err, ErrLoginRequired) {
		view.LoginRequired = true
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Pages = pages
	return view, nil
}

func (t *Thread) loadIssue(ctx context.Context) (*core.Issue, error) {
	if t.Page.ByNumber() {
		return t.Service.LoadIssueByNumber(ctx, t.Page.IssueNumber)
	}
	return t.Service.LoadIssueByTerm(ctx, t.Page.IssueTerm)
}

// Issue returns the loaded or created issue, or nil.
func (t *Thread) Issue() *core.Issue {
	return t.issue
}

// Paginator returns the comment paginator, or nil when the issue has no
// comments.
func (t *Thread) Paginator() *Paginator {
	return t.paginator
}

// LoadMore loads the next hidden comment page.
func (t *Thread) LoadMore(ctx context.Context) (*tracker.CommentPage, error) {
	if t.paginator == nil {
		return nil, nil
	}
	return t.paginator.LoadMore(ctx)
}

// Submit posts markdown to the thread. The host origin must be listed in the
// project's repo config; the backing issue is created first when the
// document has none yet.
func (t *Thread) Submit(ctx context.Context, markdown string) (*core.IssueComment, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, errors.New("comment body is required")
	}
	if t.issue != nil && t.issue.Confidential {
		return nil, ErrConfidentialIssue
	}

	if err := t.AssertOrigin(ctx); err != nil {
		return nil, err
	}

	if t.issue == nil {
		title := t.Page.Title
		if strings.TrimSpace(title) == "" {
			title = t.Page.IssueTerm
		}
		created, err := t.Service.CreateIssue(ctx, tracker.NewIssue{
			DocumentURL: t.Page.URL,
			Title:       title,
			Description: t.Page.Description,
			Label:       t.Page.Label,
		})
		if err != nil {
			return nil, fmt.Errorf("create issue: %w", err)
		}
		t.issue = created
		if t.Logger != nil {
			t.Logger.Info("Created issue", zap.Int64("iid", created.IID), zap.String("term", t.Page.IssueTerm))
		}
	}

	comment, err := t.Service.PostComment(ctx, t.issue.IID, markdown)
	if err != nil {
		return nil, fmt.Errorf("post comment: %w", err)
	}
	return comment, nil
}

// AssertOrigin checks the host origin against the project's repo config.
func (t *Thread) AssertOrigin(ctx context.Context) error {
	cfg, err := t.Service.LoadRepoConfig(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(cfg.Origins, t.Page.Origin) {
		return nil
	}
	if t.Logger != nil {
		t.Logger.Warn("Origin is not permitted to post",
			zap.String("origin", t.Page.Origin),
			zap.Int64("project_id", t.Page.ProjectID),
			zap.Strings("origins", cfg.Origins))
	}
	return fmt.Errorf("%w: add %q to the origins in %s", ErrOriginNotPermitted, t.Page.Origin, tracker.RepoConfigFile)
}
