package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RouterOptions struct {
	CORSOrigin string
	Logger     logrus.FieldLogger
}

// NewRouter wires every handler under /v1.
func NewRouter(auth *AuthController, chat *ChatController, events *EventsController, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(opts.CORSOrigin))
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware(opts.Logger))

	v1 := r.Group("/v1")
	{
		v1.POST("/session", auth.Login)
		v1.GET("/session", auth.Session)
		v1.DELETE("/session", auth.Logout)

		conversations := v1.Group("/conversations", auth.LoginRequired())
		conversations.POST("", chat.CreateConversation)
		conversations.GET("", chat.ListConversations)
		conversations.GET("/:id/messages", chat.ListMessages)
		conversations.POST("/:id/messages", chat.Send)
		conversations.POST("/:id/history", chat.LoadHistory)
		conversations.DELETE("/:id", chat.DeleteConversation)
		conversations.GET("/:id/transcript", chat.Transcript)
		conversations.PUT("/:id/active", chat.SetActive)

		v1.GET("/state", auth.LoginRequired(), chat.State)
		v1.DELETE("/state/error", auth.LoginRequired(), chat.ClearError)
		v1.GET("/events/ws", auth.LoginRequired(), events.Stream)
	}
	return r
}
