package cache

import (
	"time"

	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
)

const defaultListingTTL = 30 * time.Second

// EventListingCache stores the published event list for the storefront
// landing read path.
type EventListingCache interface {
	GetListing() ([]eventdomain.Event, bool)
	SetListing(events []eventdomain.Event)
	Invalidate()
}

type eventListingCache struct {
	listings Cache[string, []eventdomain.Event]
	ttl      time.Duration
}

const listingKey = "published"

// NewEventListingCache returns an in-memory cache for published event reads.
func NewEventListingCache() EventListingCache {
	return &eventListingCache{
		listings: NewTTLCache[string, []eventdomain.Event](),
		ttl:      defaultListingTTL,
	}
}

func (c *eventListingCache) GetListing() ([]eventdomain.Event, bool) {
	return c.listings.Get(listingKey)
}

func (c *eventListingCache) SetListing(events []eventdomain.Event) {
	if events == nil {
		return
	}
	c.listings.Set(listingKey, events, c.ttl)
}

func (c *eventListingCache) Invalidate() {
	c.listings.Delete(listingKey)
}
