// Package kafka consumes refresh rate policy events from a Kafka topic and
// applies those addressed to this display.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
	"github.com/mohammed-shakir/adaptive-refresh/internal/logger"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
)

// Applier receives decoded events. *control.Plane implements it.
type Applier interface {
	SetAdministrative(ctx context.Context, p policy.Policy) (policy.Status, error)
	SetOverride(ctx context.Context, p policy.Policy) (policy.Status, error)
	ClearOverride(ctx context.Context) (policy.Status, error)
	ConfirmMode(ctx context.Context, id catalog.ModeID) error
}

type Runner struct {
	log      *slog.Logger
	cfg      FeedConfig
	display  string
	app      Applier
	ms       *metricSet
	ver      *eventVersions
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg FeedConfig, display string, app Applier, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:     opts.Logger.With("component", "policyfeed"),
		cfg:     cfg,
		display: display,
		app:     app,
		ms:      newMetricSet(opts.Register),
		ver:     newEventVersions(cfg.DedupeSize),
		assign:  map[int32]struct{}{},
	}
}

// Enabled reports whether Start will actually consume.
func (r *Runner) Enabled() bool {
	return r.cfg.Enabled && r.cfg.Driver == DriverKafka
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.log.Info("policy feed disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.app == nil {
		return errors.New("kafka runner: applier dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
		log:     r.log,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("policy feed started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("policy feed stopped")
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var w WireEvent
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: decode: %v", ErrBadEvent, err)
	}
	if err := w.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return err
	}
	if w.Display != r.display {
		r.ms.apply.WithLabelValues("skip_display").Inc()
		r.ms.msgs.WithLabelValues("ok").Inc()
		return nil
	}
	if !r.ver.admit(w) {
		r.ms.apply.WithLabelValues("skip_version").Inc()
		r.ms.msgs.WithLabelValues("ok").Inc()
		return nil
	}

	ctx = logger.WithDisplay(logger.WithSource(ctx, "kafka"), w.Display)
	err := r.apply(ctx, w)
	r.observe(w.Op, err, time.Since(start))
	return err
}

func (r *Runner) apply(ctx context.Context, w WireEvent) error {
	var (
		st  policy.Status
		err error
	)
	switch w.Op {
	case OpSetPolicy:
		st, err = r.app.SetAdministrative(ctx, *w.Policy)
	case OpSetOverride:
		st, err = r.app.SetOverride(ctx, *w.Policy)
	case OpClearOverride:
		st, err = r.app.ClearOverride(ctx)
	case OpModeConfirmed:
		err = r.app.ConfirmMode(ctx, catalog.ModeID(*w.ModeID))
		st = policy.Changed
	}

	switch {
	case errors.Is(err, policy.ErrInvalidPolicy), errors.Is(err, catalog.ErrNotFound):
		r.ms.apply.WithLabelValues("rejected").Inc()
		r.log.WarnContext(ctx, "policy feed event rejected", "op", w.Op, "version", w.Version, "err", err)
		return err
	case err != nil:
		r.ms.apply.WithLabelValues("error").Inc()
		return fmt.Errorf("apply %s: %w", w.Op, err)
	case st == policy.Unchanged:
		r.ms.apply.WithLabelValues("unchanged").Inc()
	default:
		r.ms.apply.WithLabelValues("applied").Inc()
	}
	return nil
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
	log     *slog.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

// ConsumeClaim marks every message, including ones that failed to apply.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil && h.log != nil {
			h.log.Error("policy feed message failed",
				"partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
