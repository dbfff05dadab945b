package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/threadline/threadline/internal/core"
	"github.com/threadline/threadline/internal/core/tracker"
)

// ErrLoginRequired reports that the tracker refused to list comments for an
// anonymous reader.
var ErrLoginRequired = errors.New("you need to log in to view comments")

// PageLoader fetches one page of an issue's comments.
type PageLoader interface {
	LoadCommentsPage(ctx context.Context, iid int64, page int) (*tracker.CommentPage, error)
}

// PageLoadPlan splits an issue's comment pages into the ones fetched up front
// and the ones left for LoadMore.
type PageLoadPlan struct {
	PageCount int
	// Eager lists the up-front pages in display order.
	Eager []int
	// Hidden is the number of pages not yet loaded.
	Hidden int
	// NextHidden is the first hidden page.
	NextHidden int
}

// Plan computes the page plan for total comments.
//
// Page 1 is always eager and so is the last page. When the last page holds
// only one or two comments the page before it is eager too, so the reader is
// never offered to load fewer than three comments.
func Plan(total int) PageLoadPlan {
	if total <= 0 {
		return PageLoadPlan{NextHidden: 2}
	}

	pageCount := (total + core.PageSize - 1) / core.PageSize
	eager := []int{1}
	remainder := total % core.PageSize
	if pageCount > 2 && remainder > 0 && remainder < 3 {
		eager = append(eager, pageCount-1)
	}
	if pageCount > 1 {
		eager = append(eager, pageCount)
	}

	return PageLoadPlan{
		PageCount:  pageCount,
		Eager:      eager,
		Hidden:     pageCount - len(eager),
		NextHidden: 2,
	}
}

// RemainingEstimate is the comment count shown on the load-more control.
func (p PageLoadPlan) RemainingEstimate() int {
	return p.Hidden * core.PageSize
}

// Paginator loads the comment pages of one issue according to its plan.
type Paginator struct {
	loader PageLoader
	iid    int64

	mu   sync.Mutex
	plan PageLoadPlan
}

// NewPaginator plans the pages of issue iid holding total comments.
func NewPaginator(loader PageLoader, iid int64, total int) *Paginator {
	return &Paginator{loader: loader, iid: iid, plan: Plan(total)}
}

// Plan returns the current plan, reflecting pages loaded so far.
func (p *Paginator) Plan() PageLoadPlan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan
}

// HasMore reports whether hidden pages remain.
func (p *Paginator) HasMore() bool {
	return p.Plan().Hidden > 0
}

// RemainingEstimate is Hidden * PageSize.
func (p *Paginator) RemainingEstimate() int {
	return p.Plan().RemainingEstimate()
}

// LoadInitial fetches the eager pages concurrently and returns them in page
// order regardless of completion order. Any failure fails the whole load.
func (p *Paginator) LoadInitial(ctx context.Context) ([]*tracker.CommentPage, error) {
	plan := p.Plan()
	if len(plan.Eager) == 0 {
		return nil, nil
	}

	pages := make([]*tracker.CommentPage, len(plan.Eager))
	g, gctx := errgroup.WithContext(ctx)
	for i, number := range plan.Eager {
		g.Go(func() error {
			page, err := p.loader.LoadCommentsPage(gctx, p.iid, number)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, loadError(err)
	}
	return pages, nil
}

// LoadMore fetches the next hidden page. Calls are serialized; a call made
// while another is in flight waits for it and then loads the following page.
// It returns nil when no hidden pages remain. A failed load leaves the plan
// untouched so it can be retried.
func (p *Paginator) LoadMore(ctx context.Context) (*tracker.CommentPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan.Hidden == 0 {
		return nil, nil
	}

	page, err := p.loader.LoadCommentsPage(ctx, p.iid, p.plan.NextHidden)
	if err != nil {
		return nil, loadError(err)
	}
	p.plan.Hidden--
	p.plan.NextHidden++
	return page, nil
}

func loadError(err error) error {
	if tracker.IsUnauthorized(err) {
		return fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}
	return err
}
