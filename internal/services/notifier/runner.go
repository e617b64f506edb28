package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/obs"
	"github.com/rescuemesh/notification-service/internal/obs/retry"
	kafkax "github.com/rescuemesh/notification-service/internal/repository/kafka"
)

// Runner consumes notification events and drives the dispatcher. Partial
// channel failure is a successful dispatch and acks; only dispatcher-fatal
// errors travel the bounded-retry-then-dead-letter path.
type Runner struct {
	log         *zap.Logger
	consumers   []*kafkax.Consumer
	disp        *dispatch.Dispatcher
	mapper      *Mapper
	events      *kafkax.NotifyEventsKafka
	maxAttempts int
	pubPolicy   retry.Policy

	mConsumed prometheus.Counter
	mOK       prometheus.Counter
	mRequeued prometheus.Counter
	mDead     prometheus.Counter
	mErrors   prometheus.Counter
	mDuration prometheus.Histogram
}

func NewRunner(
	log *zap.Logger,
	consumers []*kafkax.Consumer,
	disp *dispatch.Dispatcher,
	mapper *Mapper,
	events *kafkax.NotifyEventsKafka,
	maxAttempts int,
) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Runner{
		log:         log,
		consumers:   consumers,
		disp:        disp,
		mapper:      mapper,
		events:      events,
		maxAttempts: maxAttempts,
		pubPolicy:   retry.DefaultPublishPolicy(log),
		mConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifier_messages_consumed_total", Help: "Notification events consumed",
		}),
		mOK: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifier_dispatched_total", Help: "Dispatches completed (including partial channel failure)",
		}),
		mRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifier_requeued_total", Help: "Messages requeued after a fatal dispatch error",
		}),
		mDead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifier_dead_lettered_total", Help: "Messages routed to the dead-letter topic",
		}),
		mErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifier_errors_total", Help: "Errors",
		}),
		mDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notifier_dispatch_duration_seconds",
			Help:    "End-to-end dispatch duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Run blocks until ctx is canceled or a consumer fails. Each consumer is a
// sequential fetch-handle-commit loop; cross-message concurrency comes from
// running several consumers in one group.
func (r *Runner) Run(ctx context.Context) error {
	handler := r.handler()

	errCh := make(chan error, len(r.consumers))
	for _, c := range r.consumers {
		c := c
		go func() { errCh <- c.Consume(ctx, handler) }()
	}

	var firstErr error
	for range r.consumers {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		r.mErrors.Inc()
		r.log.Warn("kafka consume", zap.Error(firstErr))
		return firstErr
	}
	return ctx.Err()
}

// handler wraps envelope handling with the retry/dead-letter routing.
// Returning nil commits the source message, so every exit that does not
// want a raw redelivery must first succeed at republishing.
func (r *Runner) handler() kafkax.Handler {
	inner := kafkax.JSONHandler(func(ctx context.Context, m kafkax.Message, env Envelope) error {
		return r.handleEnvelope(ctx, m, env)
	})

	return func(ctx context.Context, m kafkax.Message) error {
		err := inner(ctx, m)
		if err == nil {
			return nil
		}

		attempts := kafkax.Attempts(m.Headers)
		log := obs.WithTrace(ctx, r.log)

		switch routeFailure(err, attempts, r.maxAttempts) {
		case routeDead:
			log.Error("dead-lettering event",
				zap.Int("attempts", attempts), zap.Error(err))
			return r.deadLetter(ctx, m, attempts, err)
		default:
			log.Warn("dispatch failed, requeueing",
				zap.Int("attempt", attempts), zap.Error(err))
			return r.requeue(ctx, m, attempts+1)
		}
	}
}

type route int

const (
	routeRequeue route = iota
	routeDead
)

// routeFailure decides where a failed message goes. A payload that can
// never decode skips the retry budget entirely.
func routeFailure(err error, attempts, maxAttempts int) route {
	var bad kafkax.ErrBadPayload
	if errors.As(err, &bad) {
		return routeDead
	}
	if attempts >= maxAttempts {
		return routeDead
	}
	return routeRequeue
}

func (r *Runner) handleEnvelope(ctx context.Context, m kafkax.Message, env Envelope) error {
	r.mConsumed.Inc()
	log := obs.WithTrace(ctx, r.log)

	req := r.mapper.MapEvent(ctx, env)
	if req.RecipientID == "" {
		log.Warn("event without recipient, dropping", zap.String("event", env.Event))
		return nil
	}

	start := time.Now()
	res, err := r.disp.Dispatch(ctx, req)
	r.mDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.mErrors.Inc()
		return err
	}

	r.mOK.Inc()
	log.Info("notification dispatched",
		zap.String("event", env.Event),
		zap.String("notification_id", res.NotificationID),
		zap.String("status", string(res.Status)),
		zap.Int("channels", len(res.ChannelStatus)),
	)
	return nil
}

func (r *Runner) requeue(ctx context.Context, m kafkax.Message, nextAttempt int) error {
	err := retry.Do(ctx, func() error {
		return r.events.Requeue(ctx, m.Key, m.Value, nextAttempt)
	}, r.pubPolicy)
	if err != nil {
		r.mErrors.Inc()
		return err
	}
	r.mRequeued.Inc()
	return nil
}

func (r *Runner) deadLetter(ctx context.Context, m kafkax.Message, attempts int, cause error) error {
	err := retry.Do(ctx, func() error {
		return r.events.DeadLetter(ctx, m.Key, m.Value, attempts, cause.Error())
	}, r.pubPolicy)
	if err != nil {
		r.mErrors.Inc()
		return err
	}
	r.mDead.Inc()
	return nil
}
