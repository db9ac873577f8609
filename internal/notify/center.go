package notify

import (
	"log/slog"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/domain"
)

// Center stores notifications for delivery. Adds are idempotent by
// notification id, so at-least-once re-delivery is a no-op here. A
// secondary key set deduplicates timer-driven notices per
// (initiative, type, calendar day).
type Center struct {
	mu      sync.Mutex
	items   []domain.Notification
	byID    map[string]int
	dayKeys map[string]struct{}

	publish func(domain.Notification)
	logger  *slog.Logger
}

// NewCenter creates an empty center.
func NewCenter(logger *slog.Logger) *Center {
	return &Center{
		byID:    make(map[string]int),
		dayKeys: make(map[string]struct{}),
		logger:  logger,
	}
}

// SetPublisher installs a hook called once for every accepted notification
// (used to broadcast over the push channel).
func (c *Center) SetPublisher(fn func(domain.Notification)) {
	c.mu.Lock()
	c.publish = fn
	c.mu.Unlock()
}

// Add stores n unless its id is already present. Returns whether it was
// accepted.
func (c *Center) Add(n domain.Notification) bool {
	c.mu.Lock()
	if _, ok := c.byID[n.ID]; ok {
		c.mu.Unlock()
		return false
	}
	c.byID[n.ID] = len(c.items)
	c.items = append(c.items, n)
	publish := c.publish
	c.mu.Unlock()

	if publish != nil {
		publish(n)
	}
	return true
}

// AddAll stores each notification in ns, returning how many were accepted.
func (c *Center) AddAll(ns []domain.Notification) int {
	accepted := 0
	for _, n := range ns {
		if c.Add(n) {
			accepted++
		}
	}
	return accepted
}

// AddOncePerDay stores n unless another notification with the same
// (initiative, type, day) key was already accepted. day is a 2006-01-02
// date string.
func (c *Center) AddOncePerDay(n domain.Notification, day string) bool {
	key := n.InitiativeID + "|" + string(n.Type) + "|" + day

	c.mu.Lock()
	if _, ok := c.dayKeys[key]; ok {
		c.mu.Unlock()
		return false
	}
	c.dayKeys[key] = struct{}{}
	c.mu.Unlock()

	return c.Add(n)
}

// List returns notifications for userID, newest first. With unreadOnly set,
// read notifications are skipped.
func (c *Center) List(userID string, unreadOnly bool) []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Notification
	for i := len(c.items) - 1; i >= 0; i-- {
		n := c.items[i]
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out
}

// MarkRead flips the read flag for id. Read state is the only mutation a
// notification ever receives.
func (c *Center) MarkRead(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	c.items[i].Read = true
	return nil
}

// Len returns the number of stored notifications.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
