// Package dispatch serializes chat turns per conversation and drops
// redelivered messages before they reach the dialogue engine.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/dialogue"
	"chat-order-service/internal/security"
	"chat-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultDedupTTL = 24 * time.Hour
)

// TurnHandler runs one turn of a conversation.
type TurnHandler interface {
	HandleMessage(ctx context.Context, conversationID, text string) (dialogue.Reply, error)
}

// TurnGuard provides the locks and idempotency keys that guard a turn.
// *redisclient.Client satisfies it.
type TurnGuard interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Inbound is a chat message as received from a transport.
type Inbound struct {
	ConversationID string `json:"conversation_id"`
	// MessageID is the transport's id for the message; empty disables dedup.
	MessageID string `json:"message_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Text      string `json:"text"`
}

// Opts configures a Dispatcher.
type Opts struct {
	Handler TurnHandler
	// Guard is optional; without it turns are neither locked nor deduplicated.
	Guard    TurnGuard
	LockTTL  time.Duration
	DedupTTL time.Duration
	Logger   *zap.Logger
}

// Dispatcher hands inbound messages to the engine one turn at a time per
// conversation.
type Dispatcher struct {
	handler  TurnHandler
	guard    TurnGuard
	lockTTL  time.Duration
	dedupTTL time.Duration
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("%w: turn handler is required", apperr.ErrValidation)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = defaultDedupTTL
	}
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	return &Dispatcher{
		handler:  opts.Handler,
		guard:    opts.Guard,
		lockTTL:  opts.LockTTL,
		dedupTTL: opts.DedupTTL,
		logger:   opts.Logger,
	}, nil
}

func lockKey(conversationID string) string {
	return fmt.Sprintf("lock:conversation:%s", conversationID)
}

func dedupKey(in Inbound) string {
	return fmt.Sprintf("message:%s:%s:%s", in.Channel, in.ConversationID, in.MessageID)
}

// Dispatch runs the turn for in. It returns apperr.ErrDuplicateMessage for a
// message id already handled and apperr.ErrTurnInProgress when another turn of
// the same conversation holds the lock.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (dialogue.Reply, error) {
	ctx, span := util.StartSpan(ctx, "Dispatcher.Dispatch")
	defer span.End()

	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.Text = security.SanitizeText(in.Text)
	span.SetAttributes(
		attribute.String("conversation.id", in.ConversationID),
		attribute.String("message.channel", in.Channel),
	)

	if in.ConversationID == "" {
		return dialogue.Reply{}, fmt.Errorf("%w: conversation id is required", apperr.ErrValidation)
	}

	if d.guard != nil && in.MessageID != "" {
		seen, err := d.guard.CheckIdempotencyKey(ctx, dedupKey(in))
		if err != nil {
			util.FailSpan(span, err)
			return dialogue.Reply{}, fmt.Errorf("failed to check message id: %w", err)
		}
		if seen {
			util.DuplicateMessagesTotal.Inc()
			d.logger.Info("Dropping redelivered message",
				zap.String("conversation_id", in.ConversationID),
				zap.String("message_id", in.MessageID))
			return dialogue.Reply{}, apperr.ErrDuplicateMessage
		}
	}

	if d.guard != nil {
		acquired, err := d.guard.AcquireLock(ctx, lockKey(in.ConversationID), d.lockTTL)
		if err != nil {
			util.FailSpan(span, err)
			return dialogue.Reply{}, fmt.Errorf("failed to lock conversation: %w", err)
		}
		if !acquired {
			util.BusyTurnsTotal.Inc()
			return dialogue.Reply{}, apperr.ErrTurnInProgress
		}
		defer func() {
			if err := d.guard.ReleaseLock(context.Background(), lockKey(in.ConversationID)); err != nil {
				d.logger.Warn("Failed to release conversation lock",
					zap.String("conversation_id", in.ConversationID),
					zap.Error(err))
			}
		}()
	}

	reply, err := d.handler.HandleMessage(ctx, in.ConversationID, in.Text)
	if err != nil {
		util.FailSpan(span, err)
		return dialogue.Reply{}, err
	}
	span.SetAttributes(
		attribute.String("conversation.stage", string(reply.Debug.Stage)),
		attribute.String("conversation.transition", reply.Debug.Transition),
	)

	if d.guard != nil && in.MessageID != "" {
		if err := d.guard.SetIdempotencyKey(ctx, dedupKey(in), reply.Debug.Transition, d.dedupTTL); err != nil {
			d.logger.Warn("Failed to record message id",
				zap.String("conversation_id", in.ConversationID),
				zap.String("message_id", in.MessageID),
				zap.Error(err))
		}
	}

	d.logger.Info("Turn dispatched",
		zap.String("conversation_id", in.ConversationID),
		zap.String("channel", in.Channel),
		zap.String("stage", string(reply.Debug.Stage)),
		zap.String("transition", reply.Debug.Transition))
	return reply, nil
}
