package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"tubesync/internal/domain"
)

type fakeSuggestionFetcher struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	calls   map[string]int
	hook    func(ctx context.Context, query string)
}

func newFakeSuggestionFetcher() *fakeSuggestionFetcher {
	return &fakeSuggestionFetcher{
		results: make(map[string][]string),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeSuggestionFetcher) FetchSuggestions(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	f.calls[query]++
	values := f.results[query]
	err := f.errs[query]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (f *fakeSuggestionFetcher) callCount(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

type SuggestionsTestSuite struct {
	suite.Suite
	fetcher *fakeSuggestionFetcher
}

func (s *SuggestionsTestSuite) SetupTest() {
	s.fetcher = newFakeSuggestionFetcher()
}

func TestSuggestionsTestSuite(t *testing.T) {
	suite.Run(t, new(SuggestionsTestSuite))
}

func (s *SuggestionsTestSuite) TestResolve_MissThenHit() {
	s.fetcher.results["cats"] = []string{"cats funny", "cats compilation"}
	c := NewSuggestions(s.fetcher, 0)

	values, err := c.Resolve(context.Background(), "cats")
	s.NoError(err)
	s.Equal([]string{"cats funny", "cats compilation"}, values)
	s.Equal(1, s.fetcher.callCount("cats"))

	values, err = c.Resolve(context.Background(), "cats")
	s.NoError(err)
	s.Equal([]string{"cats funny", "cats compilation"}, values)
	s.Equal(1, s.fetcher.callCount("cats"))
}

func (s *SuggestionsTestSuite) TestResolve_ExactKeyNoNormalization() {
	s.fetcher.results["Cats"] = []string{"Cats the musical"}
	s.fetcher.results["cats"] = []string{"cats funny"}
	c := NewSuggestions(s.fetcher, 0)

	upper, err := c.Resolve(context.Background(), "Cats")
	s.NoError(err)
	lower, err2 := c.Resolve(context.Background(), "cats")
	s.NoError(err2)

	s.NotEqual(upper, lower)
	s.Equal(1, s.fetcher.callCount("Cats"))
	s.Equal(1, s.fetcher.callCount("cats"))
}

func (s *SuggestionsTestSuite) TestResolve_EmptyResultIsAHit() {
	s.fetcher.results["zzzz"] = []string{}
	c := NewSuggestions(s.fetcher, 0)

	values, err := c.Resolve(context.Background(), "zzzz")
	s.NoError(err)
	s.Empty(values)

	_, err = c.Resolve(context.Background(), "zzzz")
	s.NoError(err)
	s.Equal(1, s.fetcher.callCount("zzzz"))
}

func (s *SuggestionsTestSuite) TestResolve_ErrorNotCached() {
	s.fetcher.errs["cats"] = &domain.FetchError{URL: "suggest", Status: 500}
	c := NewSuggestions(s.fetcher, 0)

	_, err := c.Resolve(context.Background(), "cats")
	var fetchErr *domain.FetchError
	s.ErrorAs(err, &fetchErr)

	s.fetcher.mu.Lock()
	delete(s.fetcher.errs, "cats")
	s.fetcher.results["cats"] = []string{"cats funny"}
	s.fetcher.mu.Unlock()

	values, err := c.Resolve(context.Background(), "cats")
	s.NoError(err)
	s.Equal([]string{"cats funny"}, values)
	s.Equal(2, s.fetcher.callCount("cats"))
}

func (s *SuggestionsTestSuite) TestResolve_CancelledFetchNotStored() {
	ctx, cancel := context.WithCancel(context.Background())
	s.fetcher.results["cats"] = []string{"cats funny"}
	s.fetcher.hook = func(context.Context, string) { cancel() }
	c := NewSuggestions(s.fetcher, 0)

	_, err := c.Resolve(ctx, "cats")
	s.ErrorIs(err, context.Canceled)
	s.Equal(0, c.Len())
}

func (s *SuggestionsTestSuite) TestLRUEviction() {
	c := NewSuggestions(s.fetcher, 2)
	for _, q := range []string{"a", "b", "c"} {
		s.fetcher.results[q] = []string{q + "1"}
		_, err := c.Resolve(context.Background(), q)
		s.Require().NoError(err)
	}

	s.Equal(2, c.Len())

	// "a" was evicted; resolving it again refetches.
	_, err := c.Resolve(context.Background(), "a")
	s.NoError(err)
	s.Equal(2, s.fetcher.callCount("a"))

	// "c" is still cached.
	_, err = c.Resolve(context.Background(), "c")
	s.NoError(err)
	s.Equal(1, s.fetcher.callCount("c"))
}

func (s *SuggestionsTestSuite) TestLRUTouchOnHit() {
	c := NewSuggestions(s.fetcher, 2)
	for _, q := range []string{"a", "b"} {
		s.fetcher.results[q] = []string{q + "1"}
		_, err := c.Resolve(context.Background(), q)
		s.Require().NoError(err)
	}

	// Touch "a" so "b" becomes the eviction candidate.
	_, err := c.Resolve(context.Background(), "a")
	s.Require().NoError(err)

	s.fetcher.results["c"] = []string{"c1"}
	_, err = c.Resolve(context.Background(), "c")
	s.Require().NoError(err)

	_, err = c.Resolve(context.Background(), "a")
	s.NoError(err)
	s.Equal(1, s.fetcher.callCount("a"))

	_, err = c.Resolve(context.Background(), "b")
	s.NoError(err)
	s.Equal(2, s.fetcher.callCount("b"))
}

func (s *SuggestionsTestSuite) TestUnboundedWhenZero() {
	c := NewSuggestions(s.fetcher, 0)
	for i := 0; i < 100; i++ {
		q := fmt.Sprintf("query-%d", i)
		s.fetcher.results[q] = []string{q}
		_, err := c.Resolve(context.Background(), q)
		s.Require().NoError(err)
	}
	s.Equal(100, c.Len())
}
