package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/session"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

// Store is the subset of store.SessionStore the coordinator needs.
type Store interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ClaimGeneration(ctx context.Context, id string, threshold int, placeholder string) (bool, error)
	GetFirstMessages(ctx context.Context, id string, n int) ([]session.Message, error)
	WriteLabel(ctx context.Context, id, label string) (bool, error)
	ReadLabel(ctx context.Context, id string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, sessionID string, msgs []session.Message) (label.Candidate, error)
}

// Publisher is the notification bus. Publish never fails from the caller's point of view.
type Publisher interface {
	Publish(evt notify.Event)
}

// Options tune when and how a label is generated.
type Options struct {
	Threshold    int
	Window       int
	Placeholder  string
	StoreTimeout time.Duration
}

// Coordinator runs generate, write, verify and publish for one session at a time.
type Coordinator struct {
	store  Store
	gen    Generator
	bus    Publisher
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	nextID uint64
	tasks  map[string]map[uint64]context.CancelFunc
}

func New(s Store, gen Generator, bus Publisher, opts Options, logger *slog.Logger) *Coordinator {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.Window <= 0 {
		opts.Window = 6
	}
	if opts.Placeholder == "" {
		opts.Placeholder = session.DefaultPlaceholder
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:  s,
		gen:    gen,
		bus:    bus,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]map[uint64]context.CancelFunc),
	}
}

// MaybeGenerateAndPersist generates, persists, verifies and announces a label for sessionID
// if the session is eligible. It never returns an error; the Outcome says what happened.
func (c *Coordinator) MaybeGenerateAndPersist(ctx context.Context, sessionID string) Outcome {
	ctx, done := c.track(ctx, sessionID)
	defer done()

	out := c.run(ctx, sessionID)
	c.report(sessionID, out)
	return out
}

func (c *Coordinator) run(ctx context.Context, sessionID string) Outcome {
	sess, err := c.getSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Reason: ReasonNotFound}
	}
	if err != nil {
		return c.storeFailure(ctx, err)
	}
	if !c.eligible(sess) {
		return Outcome{Reason: ReasonSkipped, Label: sess.Label}
	}

	claimed, err := c.claim(ctx, sessionID)
	if err != nil {
		return c.storeFailure(ctx, err)
	}
	if !claimed {
		return Outcome{Reason: ReasonSkipped}
	}

	msgs, err := c.firstMessages(ctx, sessionID)
	if err != nil {
		return c.storeFailure(ctx, err)
	}

	cand, err := c.gen.Generate(ctx, sessionID, msgs)
	switch {
	case errors.Is(err, label.ErrNoUserMessage):
		return Outcome{Reason: ReasonNoUserMessage, Err: err}
	case ctx.Err() != nil:
		return Outcome{Reason: ReasonCancelled, Err: ctx.Err()}
	case err != nil:
		return Outcome{Reason: ReasonGeneratorError, Err: err}
	}

	found, err := c.writeLabel(ctx, sessionID, cand.Text)
	if err != nil {
		return c.storeFailure(ctx, err)
	}
	if !found {
		return Outcome{Reason: ReasonNotFound, Label: cand.Text, Strategy: cand.Strategy}
	}

	observed, err := c.readLabel(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Reason: ReasonNotFound, Label: cand.Text, Strategy: cand.Strategy}
	}
	if err != nil {
		return c.storeFailure(ctx, err)
	}
	if observed != cand.Text {
		return Outcome{
			Reason:   ReasonVerificationMismatch,
			Label:    cand.Text,
			Observed: observed,
			Strategy: cand.Strategy,
		}
	}

	c.bus.Publish(notify.Event{
		SessionID: sessionID,
		OwnerID:   sess.OwnerID,
		NewLabel:  observed,
		EmittedAt: c.now(),
	})
	return Outcome{Reason: ReasonPublished, Label: observed, Strategy: cand.Strategy}
}

func (c *Coordinator) eligible(s *session.Session) bool {
	return s.MessageCount >= c.opts.Threshold &&
		!s.LabelGenerationAttempted &&
		!s.LabelManual &&
		s.Label == c.opts.Placeholder
}

func (c *Coordinator) storeFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Reason: ReasonCancelled, Err: err}
	}
	return Outcome{Reason: ReasonStoreError, Err: err}
}

func (c *Coordinator) report(sessionID string, out Outcome) {
	switch out.Reason {
	case ReasonPublished:
		c.logger.Info("session label published",
			"session_id", sessionID,
			"label", out.Label,
			"strategy", out.Strategy,
		)
	case ReasonSkipped:
		c.logger.Debug("label generation skipped", "session_id", sessionID, "reason", out.Reason)
	case ReasonVerificationMismatch:
		c.logger.Warn("label not published",
			"session_id", sessionID,
			"reason", out.Reason,
			"expected", out.Label,
			"observed", out.Observed,
		)
	default:
		attrs := []any{"session_id", sessionID, "reason", out.Reason}
		if out.Err != nil {
			attrs = append(attrs, "error", out.Err)
		}
		c.logger.Warn("label not published", attrs...)
	}
}

// track derives a cancellable context for one run and registers it under sessionID.
// The context is also cancelled by Close.
func (c *Coordinator) track(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.tasks[sessionID] == nil {
		c.tasks[sessionID] = make(map[uint64]context.CancelFunc)
	}
	c.tasks[sessionID][id] = cancel
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		delete(c.tasks[sessionID], id)
		if len(c.tasks[sessionID]) == 0 {
			delete(c.tasks, sessionID)
		}
		c.mu.Unlock()
		stop()
		cancel()
	}
}

// Cancel aborts any in-flight run for sessionID. It reports whether one was running.
func (c *Coordinator) Cancel(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := c.tasks[sessionID]
	for _, cancel := range running {
		cancel()
	}
	return len(running) > 0
}

// HandleMessageStored is the NATS handler for caption.session.message.stored.
func (c *Coordinator) HandleMessageStored(subject string, data []byte) {
	var evt hermes.MessageStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Error("failed to parse message stored event", "subject", subject, "error", err)
		return
	}
	c.OnMessageStored(evt)
}

// OnMessageStored starts a background run once the session reaches the threshold.
// Each eligible event runs in its own goroutine.
func (c *Coordinator) OnMessageStored(evt hermes.MessageStoredEvent) {
	if evt.SessionID == "" {
		c.logger.Error("message stored event without session_id")
		return
	}
	if evt.MessageCount < c.opts.Threshold {
		return
	}
	c.Go(evt.SessionID)
}

// HandleSessionDeleted is the NATS handler for caption.session.deleted.
func (c *Coordinator) HandleSessionDeleted(subject string, data []byte) {
	var evt hermes.SessionDeletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Error("failed to parse session deleted event", "subject", subject, "error", err)
		return
	}
	c.OnSessionDeleted(evt)
}

func (c *Coordinator) OnSessionDeleted(evt hermes.SessionDeletedEvent) {
	if c.Cancel(evt.SessionID) {
		c.logger.Info("cancelled label generation for deleted session", "session_id", evt.SessionID)
	}
}

// Go runs MaybeGenerateAndPersist in the background. Close waits for it.
func (c *Coordinator) Go(sessionID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.MaybeGenerateAndPersist(c.ctx, sessionID)
	}()
}

// Close cancels every in-flight run and waits for background runs to return.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.StoreTimeout)
}

func (c *Coordinator) getSession(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.GetSession(ctx, id)
}

func (c *Coordinator) claim(ctx context.Context, id string) (bool, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.ClaimGeneration(ctx, id, c.opts.Threshold, c.opts.Placeholder)
}

func (c *Coordinator) firstMessages(ctx context.Context, id string) ([]session.Message, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.GetFirstMessages(ctx, id, c.opts.Window)
}

func (c *Coordinator) writeLabel(ctx context.Context, id, text string) (bool, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.WriteLabel(ctx, id, text)
}

func (c *Coordinator) readLabel(ctx context.Context, id string) (string, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	return c.store.ReadLabel(ctx, id)
}
