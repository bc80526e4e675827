package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/dialogue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (h *recordingHandler) HandleMessage(_ context.Context, _ string, text string) (dialogue.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return dialogue.Reply{}, h.err
	}
	h.texts = append(h.texts, text)
	return dialogue.Reply{
		Text:  "ok",
		Debug: dialogue.Debug{Stage: conversation.StageProductSelected, Transition: "select_product"},
	}, nil
}

type memoryGuard struct {
	mu    sync.Mutex
	locks map[string]bool
	keys  map[string]interface{}
	err   error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{locks: make(map[string]bool), keys: make(map[string]interface{})}
}

func (g *memoryGuard) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.locks[key] {
		return false, nil
	}
	g.locks[key] = true
	return true, nil
}

func (g *memoryGuard) ReleaseLock(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, key)
	return nil
}

func (g *memoryGuard) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.keys[key]
	return ok, g.err
}

func (g *memoryGuard) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = value
	return nil
}

func newTestDispatcher(t *testing.T, h TurnHandler, g TurnGuard) *Dispatcher {
	t.Helper()
	d, err := New(Opts{Handler: h, Guard: g, Logger: zap.NewNop()})
	require.NoError(t, err)
	return d
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(Opts{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDispatchSanitizesText(t *testing.T) {
	h := &recordingHandler{}
	d := newTestDispatcher(t, h, newMemoryGuard())

	reply, err := d.Dispatch(context.Background(), Inbound{ConversationID: "c1", Text: " <b>A0001</b> "})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, []string{"A0001"}, h.texts)
}

func TestDispatchRequiresConversationID(t *testing.T) {
	d := newTestDispatcher(t, &recordingHandler{}, nil)
	_, err := d.Dispatch(context.Background(), Inbound{Text: "A0001"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDispatchDropsDuplicates(t *testing.T) {
	h := &recordingHandler{}
	d := newTestDispatcher(t, h, newMemoryGuard())
	in := Inbound{ConversationID: "c1", MessageID: "m1", Channel: "telegram", Text: "تایید"}

	_, err := d.Dispatch(context.Background(), in)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), in)
	assert.ErrorIs(t, err, apperr.ErrDuplicateMessage)
	assert.Len(t, h.texts, 1)

	in.MessageID = "m2"
	_, err = d.Dispatch(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, h.texts, 2)
}

func TestDispatchRejectsConcurrentTurn(t *testing.T) {
	g := newMemoryGuard()
	g.locks[lockKey("c1")] = true
	h := &recordingHandler{}
	d := newTestDispatcher(t, h, g)

	_, err := d.Dispatch(context.Background(), Inbound{ConversationID: "c1", Text: "A0001"})
	assert.ErrorIs(t, err, apperr.ErrTurnInProgress)
	assert.Empty(t, h.texts)

	_, err = d.Dispatch(context.Background(), Inbound{ConversationID: "c2", Text: "A0001"})
	assert.NoError(t, err)
}

func TestDispatchReleasesLock(t *testing.T) {
	g := newMemoryGuard()
	h := &recordingHandler{err: errors.New("boom")}
	d := newTestDispatcher(t, h, g)

	_, err := d.Dispatch(context.Background(), Inbound{ConversationID: "c1", MessageID: "m1", Text: "A0001"})
	assert.Error(t, err)
	assert.False(t, g.locks[lockKey("c1")])
	assert.Empty(t, g.keys)
}

func TestDispatchGuardFailure(t *testing.T) {
	g := newMemoryGuard()
	g.err = errors.New("redis down")
	d := newTestDispatcher(t, &recordingHandler{}, g)

	_, err := d.Dispatch(context.Background(), Inbound{ConversationID: "c1", Text: "A0001"})
	assert.Error(t, err)
	assert.Equal(t, "internal", apperr.Kind(err))
}

func TestDispatchWithoutGuard(t *testing.T) {
	h := &recordingHandler{}
	d := newTestDispatcher(t, h, nil)

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), Inbound{ConversationID: "c1", MessageID: "m1", Text: "سلام"})
		require.NoError(t, err)
	}
	assert.Len(t, h.texts, 2)
}
