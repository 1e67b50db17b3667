package queue

import (
	"context"
	"fmt"
	"sync"

	"sendqueue/internal/constants"
	"sendqueue/internal/metrics"
	"sendqueue/internal/retry"
	"sendqueue/internal/tracing"
	"sendqueue/pkg/queue/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Draft is the caller-supplied content of an outbound message. The queue
// assigns the local id, timestamps, and retry bookkeeping.
type Draft struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Payload        types.MessagePayload
	ReplyTo        *string
}

// ControllerOptions tunes a QueueController. Zero values select defaults.
type ControllerOptions struct {
	Logger        *logrus.Logger
	Clock         types.Clock
	MaxAttempts   int
	MaxConcurrent int
}

// QueueController orchestrates the delivery queue: it appends drafts to the
// store, drains eligible items on enqueue, reconnect, timer wake-up, or
// explicit resume, and applies each attempt outcome back to the store before
// considering the item settled.
//
// All state lives in the injected store; the controller holds no queue copy
// that could diverge from it.
type QueueController struct {
	store     types.QueueStore
	transport types.DeliveryTransport
	monitor   *ConnectivityMonitor
	scheduler *RetryScheduler
	policy    *retry.Policy
	clock     types.Clock
	logger    *logrus.Logger

	maxAttempts   int
	maxConcurrent int

	mu           sync.Mutex
	passRunning  bool
	passPending  bool
	generation   uint64
	listeners    map[int]func(types.DeliveryEvent)
	nextListener int
	closed       bool
}

// NewQueueController wires the controller to its collaborators. monitor may
// be nil, in which case the controller behaves as always-online and relies on
// transport classification alone.
func NewQueueController(store types.QueueStore, transport types.DeliveryTransport, monitor *ConnectivityMonitor, opts ControllerOptions) *QueueController {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxAttempts
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = constants.DefaultMaxConcurrentDeliveries
	}

	policy := retry.NewPolicy()

	c := &QueueController{
		store:         store,
		transport:     transport,
		monitor:       monitor,
		scheduler:     NewRetryScheduler(policy, clock, logger),
		policy:        policy,
		clock:         clock,
		logger:        logger,
		maxAttempts:   maxAttempts,
		maxConcurrent: maxConcurrent,
		listeners:     make(map[int]func(types.DeliveryEvent)),
	}

	if monitor != nil {
		monitor.OnBecameOnline(func() {
			logger.Info("Connectivity restored, draining send queue")
			go c.ProcessQueue(context.Background())
		})
	}

	return c
}

// Send validates the draft, appends it to the durable queue, and returns its
// local id immediately. Delivery is optimistic: the caller treats the message
// as sending and learns the terminal outcome through Subscribe. Manual retry
// of a failed message is a fresh Send, which starts over at attempt zero.
func (c *QueueController) Send(ctx context.Context, draft Draft) (string, error) {
	if err := validateDraft(draft); err != nil {
		return "", err
	}

	now := c.clock.Now()
	msg := &types.QueuedMessage{
		LocalID:        uuid.NewString(),
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		SenderName:     draft.SenderName,
		Payload:        draft.Payload,
		ReplyTo:        draft.ReplyTo,
		EnqueuedAt:     now,
		LastAttemptAt:  now,
		MaxAttempts:    c.maxAttempts,
		Status:         types.ItemStatusPending,
	}

	if err := c.store.Append(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	metrics.IncrementCounter("queue_enqueued_total", nil, "Messages accepted into the send queue")
	c.logger.WithFields(logrus.Fields{
		"localId":      sanitizeID(msg.LocalID),
		"conversation": sanitizeID(msg.ConversationID),
		"kind":         msg.Payload.Kind,
	}).Debug("Message enqueued")

	if c.isOnline() {
		go c.ProcessQueue(context.Background())
	}

	return msg.LocalID, nil
}

// Resume triggers a processing pass, used on app-foreground.
func (c *QueueController) Resume() {
	go c.ProcessQueue(context.Background())
}

// Subscribe registers a listener for terminal delivery events and returns an
// unsubscribe function.
func (c *QueueController) Subscribe(listener func(types.DeliveryEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Clear empties the queue and cancels the armed wake timer, e.g. on logout.
// Attempts already in flight are allowed to finish; their results are
// discarded.
func (c *QueueController) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()

	c.scheduler.Cancel()
	return c.store.Clear(ctx)
}

// Close stops the controller: no further passes start and the wake timer is
// cancelled. The store is left untouched so a later controller can resume it.
func (c *QueueController) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.scheduler.Cancel()
}

// ProcessQueue runs one processing pass. Passes never overlap; a trigger that
// arrives while a pass is running schedules exactly one follow-up pass, so no
// eligible item is missed and no item is picked up twice.
func (c *QueueController) ProcessQueue(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.passRunning {
		c.passPending = true
		c.mu.Unlock()
		return
	}
	c.passRunning = true
	c.mu.Unlock()

	for {
		c.runPass(ctx)

		c.mu.Lock()
		if c.passPending && !c.closed {
			c.passPending = false
			c.mu.Unlock()
			continue
		}
		c.passRunning = false
		c.mu.Unlock()
		return
	}
}

func (c *QueueController) runPass(ctx context.Context) {
	if !c.isOnline() {
		c.logger.Debug("Skipping queue pass while offline")
		return
	}

	gen := c.currentGeneration()

	items, err := c.store.ListAll(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to list queued messages")
		return
	}

	now := c.clock.Now()
	eligible := c.scheduler.Eligible(items, now)
	if len(eligible) == 0 {
		c.armWakeTimer(ctx)
		return
	}

	ctx, span := tracing.StartSpan(ctx, "queue.process_pass",
		attribute.Int("queue.eligible", len(eligible)),
		attribute.Int("queue.depth", len(items)),
	)
	defer span.End()

	// Conversations drain concurrently up to the bound so one slow
	// conversation cannot head-of-line block the rest; items within a
	// conversation go strictly in enqueue order.
	var order []string
	byConversation := make(map[string][]types.QueuedMessage)
	for _, item := range eligible {
		if _, seen := byConversation[item.ConversationID]; !seen {
			order = append(order, item.ConversationID)
		}
		byConversation[item.ConversationID] = append(byConversation[item.ConversationID], item)
	}

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup
	for _, conversationID := range order {
		msgs := byConversation[conversationID]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.deliverConversation(ctx, gen, msgs)
		}()
	}
	wg.Wait()

	c.armWakeTimer(ctx)
}

// deliverConversation attempts each message in enqueue order. A transient
// failure stops the conversation for this pass: delivering a later message
// before an earlier one retries would reorder the conversation at the
// backend.
func (c *QueueController) deliverConversation(ctx context.Context, gen uint64, msgs []types.QueuedMessage) {
	for i := range msgs {
		msg := msgs[i]

		ok, err := c.beginAttempt(ctx, msg.LocalID)
		if err != nil || !ok {
			continue
		}

		transientFailure := c.attempt(ctx, gen, &msg)
		if transientFailure {
			return
		}
	}
}

// beginAttempt transitions the item from pending to in-flight. The
// transition is checked and set under the store's mutation path, so two
// passes can never both claim the same item.
func (c *QueueController) beginAttempt(ctx context.Context, localID string) (bool, error) {
	claimed := false
	err := c.store.Update(ctx, localID, func(m *types.QueuedMessage) {
		if m.Status == types.ItemStatusPending {
			m.Status = types.ItemStatusInFlight
			claimed = true
		}
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// attempt runs one transport call and applies the outcome. It reports whether
// the failure was transient, which stops the conversation for this pass.
func (c *QueueController) attempt(ctx context.Context, gen uint64, msg *types.QueuedMessage) bool {
	attemptCtx, span := tracing.StartSpan(ctx, "queue.delivery_attempt",
		attribute.String("queue.conversation_id", sanitizeID(msg.ConversationID)),
		attribute.Int("queue.attempt", msg.AttemptCount+1),
	)
	defer span.End()

	start := c.clock.Now()
	metrics.IncrementCounter("delivery_attempts_total", nil, "Delivery attempts issued to the transport")

	remoteID, err := c.safeSend(attemptCtx, msg)
	metrics.RecordTimer("delivery_attempt_duration", c.clock.Now().Sub(start), nil, "Transport attempt duration")

	// The queue may have been cleared while the attempt was in flight; the
	// item is gone and its result is discarded.
	if c.currentGeneration() != gen {
		c.logger.WithField("localId", sanitizeID(msg.LocalID)).Debug("Discarding attempt result for cleared queue")
		return false
	}

	if err == nil {
		c.settleDelivered(ctx, msg, remoteID)
		return false
	}

	tracing.RecordError(attemptCtx, err)

	if types.IsPermanent(err) {
		c.settleFailed(ctx, msg, err, "permanent")
		return false
	}

	return c.recordTransientFailure(ctx, msg, err)
}

func (c *QueueController) settleDelivered(ctx context.Context, msg *types.QueuedMessage, remoteID string) {
	if err := c.store.Remove(ctx, msg.LocalID); err != nil {
		c.logger.WithError(err).Error("Failed to remove delivered message from queue")
	}

	metrics.IncrementCounter("queue_delivered_total", nil, "Messages confirmed by the backend")
	c.logger.WithFields(logrus.Fields{
		"localId":  sanitizeID(msg.LocalID),
		"remoteId": sanitizeID(remoteID),
		"attempts": msg.AttemptCount + 1,
	}).Info("Message delivered")

	c.emit(types.DeliveryEvent{LocalID: msg.LocalID, RemoteID: remoteID})
}

func (c *QueueController) settleFailed(ctx context.Context, msg *types.QueuedMessage, cause error, reason string) {
	if err := c.store.Remove(ctx, msg.LocalID); err != nil {
		c.logger.WithError(err).Error("Failed to remove failed message from queue")
	}

	metrics.IncrementCounter("queue_failed_total", map[string]string{"reason": reason}, "Messages dropped with a terminal failure")
	c.logger.WithFields(logrus.Fields{
		"localId": sanitizeID(msg.LocalID),
		"reason":  reason,
	}).WithError(cause).Warn("Message delivery failed terminally")

	c.emit(types.DeliveryEvent{LocalID: msg.LocalID, Err: cause})
}

// recordTransientFailure increments the attempt count and either puts the
// item back to pending for the next eligible pass or evicts it once the
// attempt budget is spent. Returns true when the item stays queued, which
// blocks the rest of its conversation for this pass; eviction frees the
// conversation head.
func (c *QueueController) recordTransientFailure(ctx context.Context, msg *types.QueuedMessage, cause error) bool {
	exhausted := false
	err := c.store.Update(ctx, msg.LocalID, func(m *types.QueuedMessage) {
		m.AttemptCount++
		m.LastAttemptAt = c.clock.Now()
		if m.AttemptCount >= m.MaxAttempts {
			m.Status = types.ItemStatusExhausted
			exhausted = true
		} else {
			m.Status = types.ItemStatusPending
		}
	})
	if err != nil {
		// Cleared or removed while in flight; nothing to reschedule.
		return false
	}

	if exhausted {
		wrapped := types.WrapTransient(cause, types.ErrCodeRetriesExhausted, "delivery retries exhausted")
		c.settleFailed(ctx, msg, wrapped, "exhausted")
		return false
	}

	c.logger.WithFields(logrus.Fields{
		"localId": sanitizeID(msg.LocalID),
		"attempt": msg.AttemptCount + 1,
	}).WithError(cause).Debug("Transient delivery failure, will retry")

	return true
}

// safeSend shields the controller from a panicking transport; an unexpected
// panic is treated as a transient network failure rather than crashing the
// host process.
func (c *QueueController) safeSend(ctx context.Context, msg *types.QueuedMessage) (remoteID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("Delivery transport panicked")
			err = types.NewTransient(types.ErrCodeNetwork, fmt.Sprintf("transport panic: %v", r))
		}
	}()
	return c.transport.Send(ctx, msg)
}

func (c *QueueController) armWakeTimer(ctx context.Context) {
	items, err := c.store.ListAll(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to list queued messages for timer arming")
		return
	}
	c.scheduler.Arm(items, func() {
		c.ProcessQueue(context.Background())
	})
}

func (c *QueueController) emit(event types.DeliveryEvent) {
	c.mu.Lock()
	listeners := make([]func(types.DeliveryEvent), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

func (c *QueueController) isOnline() bool {
	if c.monitor == nil {
		return true
	}
	return c.monitor.IsOnline()
}

func (c *QueueController) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func validateDraft(draft Draft) error {
	if draft.ConversationID == "" {
		return types.NewPermanent(types.ErrCodeValidation, "conversation id is required")
	}
	if draft.SenderID == "" {
		return types.NewPermanent(types.ErrCodeValidation, "sender id is required")
	}

	switch draft.Payload.Kind {
	case types.PayloadKindText, types.PayloadKindSystem:
		if draft.Payload.Text == "" {
			return types.NewPermanent(types.ErrCodeValidation, "text payload is empty")
		}
	case types.PayloadKindImage:
		if draft.Payload.Image == nil {
			return types.NewPermanent(types.ErrCodeValidation, "image payload is missing metadata")
		}
		if draft.Payload.Image.URL == "" && draft.Payload.Image.LocalPath == "" {
			return types.NewPermanent(types.ErrCodeValidation, "image payload needs a URL or local path")
		}
	default:
		return types.NewPermanent(types.ErrCodeValidation, fmt.Sprintf("unknown payload kind %q", draft.Payload.Kind))
	}

	return nil
}

// sanitizeID shortens identifiers for log output.
func sanitizeID(id string) string {
	if len(id) <= constants.DefaultIDMaskLength {
		return id
	}
	return id[:constants.DefaultIDMaskLength] + "..."
}
