package memory

import (
	"time"

	"neon-assistant-be/pkg/llm"

	"github.com/patrickmn/go-cache"
)

// HistoryCache keeps the replayable LLM history of hot sessions in memory so
// a multi-turn conversation does not hit Postgres on every exchange. The
// database stays the source of truth; entries expire on their own.
type HistoryCache struct {
	cache *cache.Cache
}

func NewHistoryCache() *HistoryCache {
	// Default expiration of 1 hour, purge sweep every 10 minutes.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &HistoryCache{
		cache: c,
	}
}

func (r *HistoryCache) Save(sessionID string, history []llm.Message) {
	r.cache.Set(sessionID, history, cache.DefaultExpiration)
}

func (r *HistoryCache) Get(sessionID string) ([]llm.Message, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.([]llm.Message), true
	}
	return nil, false
}

func (r *HistoryCache) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}
