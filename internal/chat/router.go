// Package chat routes direct messages: validate, persist, then fan out to
// every live connection of sender and recipient. Sends are serialized
// through a single goroutine, which gives FIFO delivery per sender and
// recipient pair; no ordering is promised across unrelated pairs.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/metrics"
	"github.com/deskhub/staffchat/internal/models"
	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
)

const (
	sendQueueDepth = 256

	// Per-identity send budget, enforced only when a rate limiter is
	// configured.
	sendRateLimit  = 60
	sendRateWindow = time.Minute
)

// RateLimiter counts sends per identity. *store.RedisStore implements it.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, id string, limit int) (bool, error)
	IncrementRateLimit(ctx context.Context, id string, window time.Duration) error
}

type sendJob struct {
	ctx   context.Context
	from  models.Identity
	req   models.SendRequest
	reply chan sendResult
}

type sendResult struct {
	msg *models.Message
	err error
}

// Router validates, persists and fans out send requests.
type Router struct {
	store    store.MessageStore
	registry *presence.Registry
	limiter  RateLimiter
	logger   zerolog.Logger
	jobs     chan sendJob
}

// NewRouter creates a message router. limiter may be nil, which disables
// send rate limiting.
func NewRouter(messages store.MessageStore, registry *presence.Registry, limiter RateLimiter, logger zerolog.Logger) *Router {
	return &Router{
		store:    messages,
		registry: registry,
		limiter:  limiter,
		logger:   logger.With().Str("component", "router").Logger(),
		jobs:     make(chan sendJob, sendQueueDepth),
	}
}

// Run processes send jobs until ctx is cancelled. It must run in exactly
// one goroutine: the serialization is what provides per-pair FIFO order.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			job.reply <- r.handle(job)
		}
	}
}

// Send validates the request, then hands it to the router loop and waits
// for the outcome. A zero-connection recipient is a success: the message
// is durably stored and retrievable later via history.
func (r *Router) Send(ctx context.Context, from models.Identity, req models.SendRequest) (*models.Message, error) {
	if err := validate(from, req); err != nil {
		metrics.SendRejections.WithLabelValues("validation").Inc()
		return nil, err
	}

	job := sendJob{ctx: ctx, from: from, req: req, reply: make(chan sendResult, 1)}
	select {
	case r.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.reply:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// validate applies the synchronous rejection rules. Nothing is persisted
// when any of them fails.
func validate(from models.Identity, req models.SendRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return &ValidationError{Reason: "empty text"}
	}
	if req.ToID == "" {
		return &ValidationError{Reason: "missing recipient"}
	}
	if req.ToID == from.ID {
		return &ValidationError{Reason: "self-addressed message"}
	}
	return nil
}

func (r *Router) handle(job sendJob) sendResult {
	if r.limiter != nil {
		allowed, err := r.limiter.CheckRateLimit(job.ctx, job.from.ID, sendRateLimit)
		if err != nil {
			// Fail open: a limiter outage must not block messaging
			r.logger.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !allowed {
			metrics.SendRejections.WithLabelValues("rate_limit").Inc()
			return sendResult{err: ErrRateLimited}
		}
	}

	msg := &models.Message{
		FromID:   job.from.ID,
		ToID:     job.req.ToID,
		TicketID: job.req.TicketID,
		Text:     job.req.Text,
	}

	// Persist first: delivery only happens for durably stored messages.
	start := time.Now()
	if err := r.store.Append(job.ctx, msg); err != nil {
		metrics.SendRejections.WithLabelValues("persistence").Inc()
		r.logger.Error().Err(err).Str("from", msg.FromID).Str("to", msg.ToID).Msg("append failed, send aborted")
		return sendResult{err: &PersistenceError{Err: err}}
	}
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	metrics.MessagesSent.Inc()

	if r.limiter != nil {
		if err := r.limiter.IncrementRateLimit(job.ctx, job.from.ID, sendRateWindow); err != nil {
			r.logger.Warn().Err(err).Msg("rate limit increment failed")
		}
	}

	event := models.Event{
		Type: models.EventMessageDelivered,
		Message: &models.DeliveredMessage{
			ID:        msg.ID,
			FromID:    msg.FromID,
			FromName:  job.from.Name,
			ToID:      msg.ToID,
			Text:      msg.Text,
			TicketID:  msg.TicketID,
			CreatedAt: msg.CreatedAt,
		},
	}

	// Multi-device echo: every connection of the sender, including the
	// originating one, receives the message. Failed deliveries to dying
	// connections are swallowed; the store already has the row.
	for _, conn := range r.registry.Connections(msg.FromID) {
		if conn.Deliver(event) {
			metrics.MessagesDelivered.WithLabelValues("sender").Inc()
		}
	}
	for _, conn := range r.registry.Connections(msg.ToID) {
		if conn.Deliver(event) {
			metrics.MessagesDelivered.WithLabelValues("recipient").Inc()
		}
	}

	return sendResult{msg: msg}
}
