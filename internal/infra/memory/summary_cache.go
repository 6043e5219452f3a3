package memory

import (
	"fmt"

	"wordfall-service/internal/domain"

	lru "github.com/hashicorp/golang-lru"
)

// SummaryCache keeps the most recent session summaries in an ARC cache.
type SummaryCache struct {
	cache *lru.ARCCache
}

func NewSummaryCache(size int) (*SummaryCache, error) {
	c, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("new summary cache: %w", err)
	}
	return &SummaryCache{cache: c}, nil
}

func (c *SummaryCache) Record(summary domain.SessionSummary) {
	c.cache.Add(summary.SessionID, summary)
}

func (c *SummaryCache) Summary(sessionID string) (domain.SessionSummary, bool) {
	v, ok := c.cache.Get(sessionID)
	if !ok {
		return domain.SessionSummary{}, false
	}
	return v.(domain.SessionSummary), true
}
