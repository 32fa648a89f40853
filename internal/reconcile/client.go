package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/session"
)

// DefaultInterval is the pull period while the client is active.
const DefaultInterval = 30 * time.Second

// Lister returns the authoritative session list for an owner.
type Lister interface {
	ListSessions(ctx context.Context, ownerID string) ([]session.Summary, error)
}

// ChangeFunc is called when a displayed label changes. old is empty the first
// time a session is seen.
type ChangeFunc func(sessionID, old, new string)

// Client keeps a local view of an owner's session labels converged with the store.
// Notifications only prompt a refresh; labels always come from the list.
type Client struct {
	lister   Lister
	ownerID  string
	interval time.Duration
	logger   *slog.Logger

	group singleflight.Group
	kick  chan struct{}

	mu       sync.Mutex
	active   bool
	seq      uint64
	applied  uint64
	sessions []session.Summary
	labels   map[string]string
	onChange ChangeFunc
}

type fetchResult struct {
	started  uint64
	sessions []session.Summary
}

func New(lister Lister, ownerID string, interval time.Duration, logger *slog.Logger) *Client {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Client{
		lister:   lister,
		ownerID:  ownerID,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		active:   true,
		labels:   make(map[string]string),
	}
}

func (c *Client) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Notify handles a pushed label event by scheduling a refresh.
func (c *Client) Notify(evt notify.Event) {
	if evt.OwnerID != "" && evt.OwnerID != c.ownerID {
		return
	}
	c.logger.Debug("label event received", "session_id", evt.SessionID)
	c.trigger()
}

// SetActive pauses or resumes polling. Becoming active refreshes immediately.
func (c *Client) SetActive(active bool) {
	c.mu.Lock()
	was := c.active
	c.active = active
	c.mu.Unlock()

	if active && !was {
		c.trigger()
	}
}

func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) trigger() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run refreshes on every trigger and, while active, every interval. It returns when ctx ends.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("session list refresh failed", "owner_id", c.ownerID, "error", err)
			}
		}()
	}

	if c.Active() {
		refresh()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.kick:
			refresh()
		case <-ticker.C:
			if c.Active() {
				refresh()
			}
		}
	}
}

// Refresh fetches the list and applies it. Concurrent calls share one in-flight fetch;
// a caller that joined a fetch started before its own call fetches again, so the result
// it waits for always reflects writes made before Refresh was called.
func (c *Client) Refresh(ctx context.Context) error {
	requested := c.next()
	for {
		v, err, _ := c.group.Do("list", func() (any, error) {
			started := c.next()
			sessions, err := c.lister.ListSessions(ctx, c.ownerID)
			return fetchResult{started: started, sessions: sessions}, err
		})
		if err != nil {
			return err
		}
		res := v.(fetchResult)
		c.apply(res)
		if res.started > requested {
			return nil
		}
	}
}

func (c *Client) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

type change struct {
	id, old, new string
}

// apply installs res unless a fetch started later has already been applied.
func (c *Client) apply(res fetchResult) {
	c.mu.Lock()
	if res.started <= c.applied {
		c.mu.Unlock()
		return
	}
	c.applied = res.started

	var changes []change
	labels := make(map[string]string, len(res.sessions))
	for _, s := range res.sessions {
		labels[s.ID] = s.Label
		if old, ok := c.labels[s.ID]; !ok || old != s.Label {
			changes = append(changes, change{id: s.ID, old: old, new: s.Label})
		}
	}
	c.labels = labels
	c.sessions = append([]session.Summary(nil), res.sessions...)
	fn := c.onChange
	c.mu.Unlock()

	for _, ch := range changes {
		c.logger.Debug("label changed", "session_id", ch.id, "old", ch.old, "new", ch.new)
		if fn != nil {
			fn(ch.id, ch.old, ch.new)
		}
	}
}

// Label returns the displayed label for sessionID.
func (c *Client) Label(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.labels[sessionID]
	return l, ok
}

// Sessions returns a copy of the last applied list.
func (c *Client) Sessions() []session.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Summary(nil), c.sessions...)
}
