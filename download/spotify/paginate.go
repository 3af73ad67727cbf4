package spotify

import (
	"context"
	"time"
)

// Page is one cursor-paginated slice of a collection.
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

// PageFetcher fetches the page found at a next-cursor URL.
type PageFetcher[T any] func(ctx context.Context, next string) (Page[T], error)

// Drain follows next cursors starting at first until one is empty and
// returns every item in server order. wait is slept between page fetches.
func Drain[T any](ctx context.Context, first Page[T], fetch PageFetcher[T], wait time.Duration) ([]T, error) {
	items := append([]T(nil), first.Items...)
	next := first.Next

	for next != "" {
		page, err := fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		next = page.Next

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return items, nil
}
