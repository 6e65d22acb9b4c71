package errhandler

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Config controls a Handler.
type Config struct {
	// LogFile is the JSON-lines error log. Empty disables persistence.
	LogFile string
	// MaxRetries bounds retries of retryable errors.
	MaxRetries int
	// RetryDelay is the fixed wait between retries.
	RetryDelay time.Duration
	// DedupWindow suppresses repeats of the same error. Zero disables it.
	DedupWindow time.Duration
}

// DefaultConfig returns three retries one second apart and a one minute
// dedup window.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  time.Second,
		DedupWindow: time.Minute,
	}
}

// Options describe the context of a single Handle call.
type Options struct {
	// Operation names what was being attempted.
	Operation string
	// Context carries extra fields for the log record.
	Context map[string]any
	// Retry re-runs the failed operation. Network recoveries use it.
	Retry func(ctx context.Context) error
}

// RecoveryFunc attempts to recover from err. It returns a short description
// of the action taken and nil on success.
type RecoveryFunc func(ctx context.Context, err error, opts Options) (string, error)

// Option configures a Handler.
type Option func(*Handler)

// WithBus publishes an ErrorHandledEvent per recorded error.
func WithBus(bus *event.Bus) Option {
	return func(h *Handler) {
		h.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger.WithComponent("errhandler")
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// Handler classifies, recovers and records errors. It is safe for
// concurrent use.
type Handler struct {
	cfg    Config
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu         sync.RWMutex
	recoveries map[errors.Category]RecoveryFunc

	writeMu sync.Mutex
	seen    *gocache.Cache
}

// New creates a Handler.
func New(cfg Config, opts ...Option) *Handler {
	h := &Handler{
		cfg:        cfg,
		logger:     logging.NopLogger(),
		now:        time.Now,
		sleep:      sleepContext,
		recoveries: make(map[errors.Category]RecoveryFunc),
	}
	if cfg.DedupWindow > 0 {
		h.seen = gocache.New(cfg.DedupWindow, 2*cfg.DedupWindow)
	}
	for _, opt := range opts {
		opt(h)
	}
	h.recoveries[errors.CategoryFile] = h.recreateMissingFile
	h.recoveries[errors.CategoryNetwork] = h.retryGateway
	return h
}

// RegisterRecovery installs fn for category, replacing any existing
// recovery including the built-ins.
func (h *Handler) RegisterRecovery(category errors.Category, fn RecoveryFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		delete(h.recoveries, category)
		return
	}
	h.recoveries[category] = fn
}

func (h *Handler) recovery(category errors.Category) RecoveryFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recoveries[category]
}

// Handle classifies err, attempts recovery and records it. It returns the
// record written, or nil for a nil error. A repeat of an error recorded
// within the dedup window is recovered again but not written or published;
// the earlier record is returned with Duplicate set and this attempt's
// recovery outcome.
func (h *Handler) Handle(ctx context.Context, err error, opts Options) *Record {
	if err == nil {
		return nil
	}
	severity, category := errors.Classify(err)
	message := err.Error()

	dedupKey := string(category) + "|" + opts.Operation + "|" + message
	var prev *Record
	if h.seen != nil {
		if v, ok := h.seen.Get(dedupKey); ok {
			prev = v.(*Record)
		}
	}

	action, recovered := h.attemptRecovery(ctx, category, err, opts)

	if prev != nil {
		dup := *prev
		dup.Duplicate = true
		dup.Recovery = action
		dup.Recovered = recovered
		h.logger.Debug("duplicate error suppressed", "id", dup.ID, "category", string(category), "recovered", recovered)
		return &dup
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Timestamp: h.now(),
		Severity:  severity.String(),
		Category:  string(category),
		Message:   message,
		Operation: opts.Operation,
		Context:   opts.Context,
		Retryable: errors.IsRetryable(err),
		Recovery:  action,
		Recovered: recovered,
	}

	if werr := h.append(rec); werr != nil {
		h.logger.Error("failed to write error log", "error", werr)
	}
	if h.seen != nil {
		h.seen.SetDefault(dedupKey, rec)
	}

	h.log(severity, rec)
	h.bus.Publish(event.NewErrorHandledEvent(rec.ID, rec.Severity, rec.Category, rec.Recovered))
	return rec
}

// attemptRecovery runs the recovery registered for category and reports the action
// taken and whether it succeeded.
func (h *Handler) attemptRecovery(ctx context.Context, category errors.Category, err error, opts Options) (string, bool) {
	fn := h.recovery(category)
	if fn == nil {
		return "", false
	}
	action, rerr := fn(ctx, err, opts)
	if rerr != nil {
		h.logger.Debug("recovery failed", "category", string(category), "error", rerr)
		return "", false
	}
	return action, action != ""
}

func (h *Handler) log(severity errors.Severity, rec *Record) {
	args := []any{
		"id", rec.ID,
		"severity", rec.Severity,
		"category", rec.Category,
		"operation", rec.Operation,
		"recovered", rec.Recovered,
		"error", rec.Message,
	}
	switch {
	case severity >= errors.SeverityHigh:
		h.logger.Error("error handled", args...)
	case severity == errors.SeverityMedium:
		h.logger.Warn("error handled", args...)
	default:
		h.logger.Info("error handled", args...)
	}
}

// append writes rec as one JSON line.
func (h *Handler) append(rec *Record) error {
	if h.cfg.LogFile == "" {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.cfg.LogFile), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Guard runs fn and hands any error to Handle. The error is swallowed when
// recovery succeeded and returned otherwise.
func (h *Handler) Guard(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	rec := h.Handle(ctx, err, Options{Operation: operation, Retry: fn})
	if rec.Recovered {
		return nil
	}
	return err
}

// recreateMissingFile creates an empty file, and its parents, for a
// not-exist error that names a path.
func (h *Handler) recreateMissingFile(_ context.Context, err error, _ Options) (string, error) {
	if !errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	path, ok := errors.PathOf(err)
	if !ok || path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "file already present: " + path, nil
		}
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	h.logger.Info("recreated missing file", "path", path)
	return "recreated " + path, nil
}

// retryGateway re-runs the operation for 502, 503 and 504 responses.
func (h *Handler) retryGateway(ctx context.Context, err error, opts Options) (string, error) {
	var statusErr *errors.HTTPStatusError
	if !errors.As(err, &statusErr) || !errors.IsGatewayStatus(statusErr.StatusCode) || opts.Retry == nil {
		return "", nil
	}
	if rerr := h.retryAfterFailure(ctx, opts.Operation, opts.Retry, err); rerr != nil {
		return "", rerr
	}
	return "retried after HTTP " + strconv.Itoa(statusErr.StatusCode), nil
}
