package cache

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SuggestionFetcher resolves search suggestions for a query string.
type SuggestionFetcher interface {
	FetchSuggestions(ctx context.Context, query string) ([]string, error)
}

type suggestEntry struct {
	query  string
	values []string
}

// Suggestions caches suggestion lists by exact literal query string: no
// normalization, and a stored empty list is still a hit. Debouncing input is
// the caller's concern; this cache only serves and fills by key. Entries
// beyond maxEntries are evicted least-recently-used (0 disables the bound).
type Suggestions struct {
	fetcher    SuggestionFetcher
	maxEntries int

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

func NewSuggestions(fetcher SuggestionFetcher, maxEntries int) *Suggestions {
	return &Suggestions{
		fetcher:    fetcher,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Resolve returns the cached suggestions for query, fetching and storing
// them on a miss. Results are stored under the exact key even when empty.
// Concurrent resolves of the same query share one fetch.
func (s *Suggestions) Resolve(ctx context.Context, query string) ([]string, error) {
	s.mu.Lock()
	if elem, ok := s.entries[query]; ok {
		s.order.MoveToFront(elem)
		values := append([]string(nil), elem.Value.(*suggestEntry).values...)
		s.mu.Unlock()
		return values, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(query, func() (any, error) {
		values, err := s.fetcher.FetchSuggestions(ctx, query)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.store(query, values)
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// Len returns the number of cached queries.
func (s *Suggestions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Suggestions) store(query string, values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[query]; ok {
		elem.Value.(*suggestEntry).values = values
		s.order.MoveToFront(elem)
		return
	}

	s.entries[query] = s.order.PushFront(&suggestEntry{query: query, values: values})

	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*suggestEntry).query)
	}
}
