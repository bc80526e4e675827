package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/dialogue"
	"chat-order-service/internal/dispatch"
	"chat-order-service/internal/models"
	"chat-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TurnDispatcher runs a chat turn.
type TurnDispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Inbound) (dialogue.Reply, error)
}

// OrderReader loads committed orders.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
}

// Pinger is a dependency the readiness check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerOpts configures a Handler.
type HandlerOpts struct {
	Dispatcher TurnDispatcher
	States     conversation.Store
	Orders     OrderReader
	// Checks are probed by /ready, keyed by dependency name.
	Checks map[string]Pinger
	// TelegramSecret, when set, must match the webhook secret header.
	TelegramSecret string
	Logger         *zap.Logger
}

// Handler contains HTTP handlers
type Handler struct {
	dispatcher     TurnDispatcher
	states         conversation.Store
	orders         OrderReader
	checks         map[string]Pinger
	telegramSecret string
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts HandlerOpts) *Handler {
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	return &Handler{
		dispatcher:     opts.Dispatcher,
		states:         opts.States,
		orders:         opts.Orders,
		checks:         opts.Checks,
		telegramSecret: opts.TelegramSecret,
		logger:         opts.Logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhook/telegram", h.telegramWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/conversations/:id/messages", h.postMessage)
		v1.GET("/conversations/:id", h.getConversation)
		v1.POST("/conversations/:id/reset", h.resetConversation)
		v1.DELETE("/conversations/:id", h.clearConversation)
		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// MessageRequest is the body of a chat message posted to the turn API
type MessageRequest struct {
	Text      string `json:"text" binding:"required"`
	MessageID string `json:"message_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// postMessage runs one conversation turn
func (h *Handler) postMessage(c *gin.Context) {
	var req MessageRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.MessageID == "" {
		req.MessageID = c.GetHeader("Idempotency-Key")
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	reply, err := h.dispatcher.Dispatch(c.Request.Context(), dispatch.Inbound{
		ConversationID: c.Param("id"),
		MessageID:      req.MessageID,
		Channel:        req.Channel,
		Text:           req.Text,
	})
	if errors.Is(err, apperr.ErrDuplicateMessage) {
		c.JSON(http.StatusOK, gin.H{"duplicate": true})
		return
	}
	if err != nil {
		h.respondError(c, "Failed to handle message", err)
		return
	}

	c.JSON(http.StatusOK, reply)
}

// getConversation returns the stored state of a conversation
func (h *Handler) getConversation(c *gin.Context) {
	st, err := h.states.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to load conversation", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// resetConversation drops the active order of a conversation
func (h *Handler) resetConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.states.Reset(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to reset conversation", err)
		return
	}
	h.logger.Info("Conversation reset via API", zap.String("conversation_id", id))
	c.JSON(http.StatusOK, conversation.NewState(id))
}

// clearConversation forgets a conversation
func (h *Handler) clearConversation(c *gin.Context) {
	if err := h.states.Clear(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "Failed to clear conversation", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	idStr := c.Param("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, "Failed to load order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"kind":    apperr.Kind(err),
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
