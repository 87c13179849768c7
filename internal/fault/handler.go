package fault

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/model"
)

// Defaults for Options.
const (
	DefaultMaxRetryAttempts = 3
	DefaultHistorySize      = 500
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultRecentCount      = 10
)

// Options configures a Handler.
type Options struct {
	AutoRecovery     bool
	MaxRetryAttempts int
	HistorySize      int
	BaseDelay        time.Duration
	Classifier       Classifier

	// OnRecord is called for every record created, after it is added to the
	// history. The engine uses it to persist records.
	OnRecord func(Record)
}

// DefaultOptions enables auto-recovery with the default caps.
func DefaultOptions() Options {
	return Options{
		AutoRecovery:     true,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
		HistorySize:      DefaultHistorySize,
		BaseDelay:        DefaultBaseDelay,
	}
}

// Handler is the error handling system. It is safe for concurrent use; one
// instance is shared by all calculation tasks of an engine.
type Handler struct {
	opts   Options
	broker *events.Broker
	logger *slog.Logger

	mu         sync.Mutex
	history    []Record // ring buffer
	next       int
	seen       int
	retries    map[string]int
	attempted  int
	recovered  int
	registered map[Category][]Action
	indicators map[string]Indicator
}

// NewHandler creates a handler publishing feedback events to broker.
func NewHandler(opts Options, broker *events.Broker, logger *slog.Logger) *Handler {
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.BaseDelay < 0 {
		opts.BaseDelay = 0
	}
	if opts.Classifier == nil {
		opts.Classifier = HeuristicClassifier{}
	}
	return &Handler{
		opts:       opts,
		broker:     broker,
		logger:     logger,
		retries:    make(map[string]int),
		registered: make(map[Category][]Action),
		indicators: make(map[string]Indicator),
	}
}

// RegisterAction adds a recovery action offered for every failure in c.
func (h *Handler) RegisterAction(c Category, a Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered[c] = append(h.registered[c], a)
}

// HandleError handles err and reports whether automatic recovery succeeded.
func (h *Handler) HandleError(ctx context.Context, err error, ec Context) bool {
	_, ok := h.Handle(ctx, err, ec)
	return ok
}

// Handle normalises err into a Record, stores it, and attempts automatic
// recovery when enabled. It returns the record and whether recovery
// succeeded.
func (h *Handler) Handle(ctx context.Context, err error, ec Context) (Record, bool) {
	rec := h.normalize(err, ec)
	h.store(rec)

	h.logger.Warn("error handled",
		"error_id", rec.ID,
		"code", rec.Code,
		"category", rec.Category,
		"severity", rec.Severity,
		"workflow_id", ec.WorkflowID,
		"well", ec.WellName,
		"recovery_attempt", ec.RecoveryAttempt,
		"error", err,
	)

	// Recovery attempts are never themselves auto-recovered.
	if !h.opts.AutoRecovery || ec.RecoveryAttempt {
		h.feedback(rec, false)
		return rec, false
	}

	auto := automatic(rec.Actions)
	if len(auto) == 0 {
		h.feedback(rec, false)
		return rec, false
	}

	key := rec.RetryKey()
	h.mu.Lock()
	attempt := h.retries[key] + 1
	if attempt > h.opts.MaxRetryAttempts {
		h.mu.Unlock()
		h.feedback(rec, true)
		return rec, false
	}
	h.retries[key] = attempt
	h.attempted++
	h.mu.Unlock()

	if err := h.backoff(ctx, attempt); err != nil {
		h.feedback(rec, false)
		return rec, false
	}

	for _, a := range auto {
		ok, runErr := a.Run(ctx, rec, ec)
		if runErr != nil {
			sub := ec
			sub.RecoveryAttempt = true
			sub.Retry = nil
			sub.Operation = "recovery:" + a.ID
			h.Handle(ctx, runErr, sub)
			continue
		}
		if ok {
			h.mu.Lock()
			delete(h.retries, key)
			h.recovered++
			h.mu.Unlock()
			h.logger.Info("error recovered", "error_id", rec.ID, "action", a.ID, "attempt", attempt)
			return rec, true
		}
	}

	h.feedback(rec, false)
	return rec, false
}

// ResetRetries clears the retry counter for key, or every counter when key
// is empty. It returns how many counters were cleared.
func (h *Handler) ResetRetries(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if key == "" {
		n := len(h.retries)
		h.retries = make(map[string]int)
		return n
	}
	if _, ok := h.retries[key]; !ok {
		return 0
	}
	delete(h.retries, key)
	return 1
}

// ResetWorkflowRetries clears every counter scoped to workflowID.
func (h *Handler) ResetWorkflowRetries(workflowID string) int {
	if workflowID == "" {
		return 0
	}
	prefix := workflowID + "/"
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for key := range h.retries {
		if strings.HasPrefix(key, prefix) {
			delete(h.retries, key)
			n++
		}
	}
	return n
}

// RetryCounters returns a copy of the live retry counters by key.
func (h *Handler) RetryCounters() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.retries)
}

// RetryCount returns the current retry counter for key.
func (h *Handler) RetryCount(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retries[key]
}

// History returns the stored records, oldest first.
func (h *Handler) History() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.historyLocked()
}

// Clear empties the history and statistics counters.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = nil
	h.next = 0
	h.seen = 0
	h.attempted = 0
	h.recovered = 0
}

func (h *Handler) normalize(err error, ec Context) Record {
	cat, sev, code := h.opts.Classifier.Classify(err, ec)
	return Record{
		ID:          model.NewID(),
		Code:        code,
		Category:    cat,
		Severity:    sev,
		Message:     err.Error(),
		UserMessage: UserMessage(cat, err.Error()),
		Suggestions: Suggestions(cat),
		Actions:     h.actionsFor(cat, ec),
		Timestamp:   time.Now().UTC(),
		Context:     ec,
	}
}

// actionsFor returns the category's actions, highest priority first.
func (h *Handler) actionsFor(c Category, ec Context) []Action {
	var actions []Action
	if retryable[c] && ec.Retry != nil && !ec.RecoveryAttempt {
		retry := ec.Retry
		actions = append(actions, Action{
			ID:          "retry_operation",
			Label:       "Retry the operation",
			Description: "Run the failed operation again after a short delay.",
			Automatic:   true,
			Priority:    100,
			Run: func(ctx context.Context, _ Record, _ Context) (bool, error) {
				if err := retry(ctx); err != nil {
					return false, err
				}
				return true, nil
			},
		})
	}

	h.mu.Lock()
	actions = append(actions, h.registered[c]...)
	h.mu.Unlock()
	actions = append(actions, manualActions[c]...)

	slices.SortStableFunc(actions, func(a, b Action) int {
		return b.Priority - a.Priority
	})
	return actions
}

func automatic(actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a.Automatic && a.Run != nil {
			out = append(out, a)
		}
	}
	return out
}

func (h *Handler) store(rec Record) {
	h.mu.Lock()
	if len(h.history) < h.opts.HistorySize {
		h.history = append(h.history, rec)
	} else {
		h.history[h.next] = rec
	}
	h.next = (h.next + 1) % h.opts.HistorySize
	h.seen++
	h.mu.Unlock()

	errorsTotal.WithLabelValues(string(rec.Category), string(rec.Severity)).Inc()
	if h.opts.OnRecord != nil {
		h.opts.OnRecord(rec)
	}
}

func (h *Handler) historyLocked() []Record {
	if len(h.history) < h.opts.HistorySize {
		return slices.Clone(h.history)
	}
	out := make([]Record, 0, len(h.history))
	out = append(out, h.history[h.next:]...)
	out = append(out, h.history[:h.next]...)
	return out
}

// backoff waits base·2^(attempt-1) plus jitter, honouring ctx.
func (h *Handler) backoff(ctx context.Context, attempt int) error {
	base := h.opts.BaseDelay
	if base == 0 {
		return ctx.Err()
	}
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(base))) //nolint:gosec // jitter doesn't need crypto-strength randomness
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay + jitter):
		return nil
	}
}

func (h *Handler) feedback(rec Record, terminal bool) {
	if h.broker == nil {
		return
	}
	msg := rec.UserMessage
	if terminal {
		msg = "Automatic recovery stopped after the maximum number of attempts. " + msg
	}
	h.broker.Publish(events.Event{
		Kind:       events.KindUserFeedback,
		WorkflowID: rec.Context.WorkflowID,
		Message:    msg,
		Data: map[string]any{
			"error_id":       rec.ID,
			"code":           rec.Code,
			"category":       string(rec.Category),
			"severity":       string(rec.Severity),
			"suggestions":    rec.Suggestions,
			"manual_actions": rec.ManualActions(),
			"terminal":       terminal,
		},
	})
}
