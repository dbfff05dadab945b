package engine

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/internal/core"
	"github.com/threadline/threadline/internal/core/tracker"
)

type fakePages struct {
	mu     sync.Mutex
	calls  []int
	delay  map[int]time.Duration
	failOn map[int]error
}

func (f *fakePages) LoadCommentsPage(ctx context.Context, iid int64, page int) (*tracker.CommentPage, error) {
	if d := f.delay[page]; d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()

	if err := f.failOn[page]; err != nil {
		return nil, err
	}
	return &tracker.CommentPage{
		Number:   page,
		Comments: []core.IssueComment{{ID: int64(page), Body: "comment"}},
	}, nil
}

func (f *fakePages) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.calls...)
	sort.Ints(out)
	return out
}

func pageNumbers(pages []*tracker.CommentPage) []int {
	out := make([]int, 0, len(pages))
	for _, page := range pages {
		out = append(out, page.Number)
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		total     int
		pageCount int
		eager     []int
		hidden    int
	}{
		{total: 0, pageCount: 0, eager: nil, hidden: 0},
		{total: 1, pageCount: 1, eager: []int{1}, hidden: 0},
		{total: 25, pageCount: 1, eager: []int{1}, hidden: 0},
		{total: 47, pageCount: 2, eager: []int{1, 2}, hidden: 0},
		{total: 51, pageCount: 3, eager: []int{1, 2, 3}, hidden: 0},
		{total: 53, pageCount: 3, eager: []int{1, 3}, hidden: 1},
		{total: 76, pageCount: 4, eager: []int{1, 3, 4}, hidden: 1},
		{total: 77, pageCount: 4, eager: []int{1, 3, 4}, hidden: 1},
		{total: 78, pageCount: 4, eager: []int{1, 4}, hidden: 2},
		{total: 100, pageCount: 4, eager: []int{1, 4}, hidden: 2},
		{total: 251, pageCount: 11, eager: []int{1, 10, 11}, hidden: 8},
	}

	for _, tt := range tests {
		plan := Plan(tt.total)
		assert.Equal(t, tt.pageCount, plan.PageCount, "total %d", tt.total)
		assert.Equal(t, tt.eager, plan.Eager, "total %d", tt.total)
		assert.Equal(t, tt.hidden, plan.Hidden, "total %d", tt.total)
		assert.Equal(t, 2, plan.NextHidden, "total %d", tt.total)
		assert.Equal(t, tt.hidden*core.PageSize, plan.RemainingEstimate(), "total %d", tt.total)
	}
}

func TestLoadInitialAppliesPageOrder(t *testing.T) {
	// Page 1 finishes last; results must still come back as 1, 3, 4.
	loader := &fakePages{delay: map[int]time.Duration{1: 30 * time.Millisecond, 3: 10 * time.Millisecond}}
	paginator := NewPaginator(loader, 9, 76)

	pages, err := paginator.LoadInitial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, pageNumbers(pages))
	assert.Equal(t, []int{1, 3, 4}, loader.seen())
	assert.Equal(t, 25, paginator.RemainingEstimate())
}

func TestLoadInitialNoComments(t *testing.T) {
	loader := &fakePages{}
	pages, err := NewPaginator(loader, 9, 0).LoadInitial(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Empty(t, loader.seen())
}

func TestLoadMoreIsSequential(t *testing.T) {
	loader := &fakePages{}
	paginator := NewPaginator(loader, 9, 100)

	_, err := paginator.LoadInitial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, paginator.RemainingEstimate())

	page, err := paginator.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number)
	assert.Equal(t, 25, paginator.RemainingEstimate())
	assert.True(t, paginator.HasMore())

	page, err = paginator.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, page.Number)
	assert.False(t, paginator.HasMore())

	page, err = paginator.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, page)
	assert.Equal(t, []int{1, 2, 3, 4}, loader.seen())
}

func TestLoadMoreConcurrentCallersGetDistinctPages(t *testing.T) {
	loader := &fakePages{delay: map[int]time.Duration{2: 10 * time.Millisecond}}
	paginator := NewPaginator(loader, 9, 100)

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := paginator.LoadMore(context.Background())
			if assert.NoError(t, err) && assert.NotNil(t, page) {
				results[i] = page.Number
			}
		}()
	}
	wg.Wait()

	sort.Ints(results)
	assert.Equal(t, []int{2, 3}, results)
	assert.Equal(t, 0, paginator.Plan().Hidden)
}

func TestLoadMoreFailureKeepsCursor(t *testing.T) {
	loader := &fakePages{failOn: map[int]error{2: errors.New("boom")}}
	paginator := NewPaginator(loader, 9, 100)

	_, err := paginator.LoadMore(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, 2, paginator.Plan().NextHidden)
	assert.Equal(t, 2, paginator.Plan().Hidden)
}

func TestUnauthorizedLoadsRequireLogin(t *testing.T) {
	unauthorized := &tracker.RequestError{Method: http.MethodGet, Path: "notes", StatusCode: http.StatusUnauthorized, Message: "unauthorized"}

	loader := &fakePages{failOn: map[int]error{4: unauthorized}}
	_, err := NewPaginator(loader, 9, 100).LoadInitial(context.Background())
	require.ErrorIs(t, err, ErrLoginRequired)

	loader = &fakePages{failOn: map[int]error{2: unauthorized}}
	_, err = NewPaginator(loader, 9, 100).LoadMore(context.Background())
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.True(t, tracker.IsUnauthorized(err))
}
