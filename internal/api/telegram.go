package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/dispatch"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	telegramChannel      = "telegram"
	msgBusy              = "پیام قبلی شما در حال پردازش است، لطفا چند لحظه صبر کنید."
	msgUnsupported       = "فعلا فقط پیام متنی پشتیبانی می‌شود."
)

// TelegramUpdate is the part of a Telegram webhook update the service reads
type TelegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
}

// SendMessage is a Bot API call answered inline in the webhook response
type SendMessage struct {
	Method string `json:"method"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func telegramConversationID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

func sendMessage(chatID int64, text string) SendMessage {
	return SendMessage{Method: "sendMessage", ChatID: chatID, Text: text}
}

// telegramWebhook runs a turn for a Telegram text message and answers with a
// sendMessage call. Telegram retries non-2xx answers, so failures still reply 200.
func (h *Handler) telegramWebhook(c *gin.Context) {
	if h.telegramSecret != "" && c.GetHeader(telegramSecretHeader) != h.telegramSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret token"})
		return
	}

	var update TelegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("Invalid Telegram update", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update"})
		return
	}

	if update.Message == nil {
		c.Status(http.StatusOK)
		return
	}
	chatID := update.Message.Chat.ID
	if update.Message.Text == "" {
		c.JSON(http.StatusOK, sendMessage(chatID, msgUnsupported))
		return
	}

	reply, err := h.dispatcher.Dispatch(c.Request.Context(), dispatch.Inbound{
		ConversationID: telegramConversationID(chatID),
		MessageID:      strconv.FormatInt(update.Message.MessageID, 10),
		Channel:        telegramChannel,
		Text:           update.Message.Text,
	})
	switch {
	case errors.Is(err, apperr.ErrDuplicateMessage):
		c.Status(http.StatusOK)
	case errors.Is(err, apperr.ErrTurnInProgress):
		c.JSON(http.StatusOK, sendMessage(chatID, msgBusy))
	case err != nil:
		h.logger.Error("Telegram turn failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("update_id", update.UpdateID),
			zap.Error(err))
		c.Status(http.StatusOK)
	default:
		c.JSON(http.StatusOK, sendMessage(chatID, reply.Text))
	}
}
