package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"finchat/model"
	"finchat/service"
)

type ChatController struct {
	chat   *service.ChatService
	logger logrus.FieldLogger
}

func NewChatController(chat *service.ChatService, logger logrus.FieldLogger) *ChatController {
	return &ChatController{chat: chat, logger: logger}
}

// owned loads the conversation named by the :id param. Conversations of other
// users are reported as missing.
func (ch *ChatController) owned(c *gin.Context, action string) (*model.Conversation, bool) {
	conv, err := ch.chat.GetConversation(c.Param("id"))
	if err == nil && conv.UserID != c.GetString("UserId") {
		err = model.ErrNotFound
	}
	if err != nil {
		abortWithError(c, ch.logger, action, err, nil)
		return nil, false
	}
	return conv, true
}

func (ch *ChatController) CreateConversation(c *gin.Context) {
	conv, err := ch.chat.CreateConversation(c.Request.Context(), c.GetString("UserId"))
	if err != nil {
		abortWithError(c, ch.logger, "create conversation", err, nil)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (ch *ChatController) ListConversations(c *gin.Context) {
	convs, err := ch.chat.ListConversations(c.GetString("UserId"))
	if err != nil {
		abortWithError(c, ch.logger, "list conversations", err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (ch *ChatController) ListMessages(c *gin.Context) {
	conv, ok := ch.owned(c, "list messages")
	if !ok {
		return
	}
	msgs, err := ch.chat.ListMessages(conv.ID)
	if err != nil {
		abortWithError(c, ch.logger, "list messages", err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "isResponding": ch.chat.IsResponding(conv.ID)})
}

func (ch *ChatController) Send(c *gin.Context) {
	ch.logger.Infof("[%s] Handling send request", c.GetString("requestId"))

	var input struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		ch.logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	conv, ok := ch.owned(c, "send message")
	if !ok {
		return
	}

	// a caller that hangs up does not cancel the reply; the configured
	// timeouts still bound it
	res, err := ch.chat.Send(context.WithoutCancel(c.Request.Context()), conv.ID, input.Text)
	if err != nil {
		var extra gin.H
		if res != nil && res.UserMessage != nil {
			extra = gin.H{"userMessage": res.UserMessage}
		}
		abortWithError(c, ch.logger, "send message", err, extra)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ch *ChatController) LoadHistory(c *gin.Context) {
	conv, err := ch.chat.LoadHistory(c.Request.Context(), c.Param("id"), c.GetString("UserId"))
	if err != nil {
		abortWithError(c, ch.logger, "load history", err, nil)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (ch *ChatController) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	conv, err := ch.chat.GetConversation(id)
	switch {
	case err == nil && conv.UserID != c.GetString("UserId"):
		abortWithError(c, ch.logger, "delete conversation", model.ErrNotFound, nil)
		return
	case err != nil && !errors.Is(err, model.ErrNotFound):
		abortWithError(c, ch.logger, "delete conversation", err, nil)
		return
	}

	if err := ch.chat.DeleteConversation(c.Request.Context(), id); err != nil {
		abortWithError(c, ch.logger, "delete conversation", err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ch *ChatController) Transcript(c *gin.Context) {
	conv, ok := ch.owned(c, "render transcript")
	if !ok {
		return
	}
	body, contentType, err := ch.chat.Transcript(conv.ID, c.DefaultQuery("format", service.TranscriptMarkdown))
	if err != nil {
		abortWithError(c, ch.logger, "render transcript", err, nil)
		return
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (ch *ChatController) SetActive(c *gin.Context) {
	conv, ok := ch.owned(c, "activate conversation")
	if !ok {
		return
	}
	if err := ch.chat.SetActiveConversation(conv.ID); err != nil {
		abortWithError(c, ch.logger, "activate conversation", err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ch *ChatController) State(c *gin.Context) {
	c.JSON(http.StatusOK, ch.chat.State())
}

func (ch *ChatController) ClearError(c *gin.Context) {
	ch.chat.ClearError()
	c.Status(http.StatusNoContent)
}
