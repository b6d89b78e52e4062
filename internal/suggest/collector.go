// Package suggest implements the auto-suggest pipeline: collect cross-type
// candidates, score them against the source item by cosine similarity, ask
// the reasoning provider to justify the survivors, and persist the results
// as pending suggestions.
package suggest

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/apptype"
)

// ItemSource is the slice of storage the collector needs.
type ItemSource interface {
	ListItemsByType(ctx context.Context, userID string, itemType apptype.ItemType, excludeIDs []string, limit int) ([]apptype.KnowledgeItem, error)
}

// Collector gathers candidate items of the two types other than the source
// item's type. Suggestions never link items of the same type.
type Collector struct {
	source   ItemSource
	pageSize int
}

// NewCollector returns a collector fetching at most pageSize items per type.
func NewCollector(source ItemSource, pageSize int) *Collector {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Collector{source: source, pageSize: pageSize}
}

// Collect fetches candidates of both other types concurrently. A failed fetch
// for one type is logged and contributes zero candidates; the run proceeds
// with whatever the other type returned.
func (c *Collector) Collect(ctx context.Context, userID string, sourceType apptype.ItemType, excludeIDs []string) []apptype.KnowledgeItem {
	types := sourceType.OtherTypes()
	results := make([][]apptype.KnowledgeItem, len(types))

	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t apptype.ItemType) {
			defer wg.Done()
			items, err := c.source.ListItemsByType(ctx, userID, t, excludeIDs, c.pageSize)
			if err != nil {
				log.Warn().Err(err).
					Str("user_id", userID).
					Str("item_type", string(t)).
					Msg("candidate fetch failed, continuing without this type")
				return
			}
			results[i] = items
		}(i, t)
	}
	wg.Wait()

	var out []apptype.KnowledgeItem
	for _, items := range results {
		out = append(out, items...)
	}
	return out
}
