package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"finchat/service"
)

// AuthController ...
type AuthController struct {
	auth   *service.AuthService
	logger logrus.FieldLogger
}

func NewAuthController(auth *service.AuthService, logger logrus.FieldLogger) *AuthController {
	return &AuthController{auth: auth, logger: logger}
}

// LoginRequired ...
// Rejects the request unless a usable token is stored, and exposes the user id as "UserId".
func (a *AuthController) LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := a.auth.Current()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
			return
		}
		c.Set("UserId", sess.UserID)
		c.Next()
	}
}

func (a *AuthController) Login(c *gin.Context) {
	a.logger.Infof("[%s] Handling login request", c.GetString("requestId"))

	var input struct {
		Token  string `json:"token" binding:"required"`
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		a.logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	sess, err := a.auth.Login(input.Token, input.UserID)
	if err != nil {
		a.logger.Warnf("[%s] Login rejected: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization, please login again"})
		return
	}

	a.logger.Infof("[%s] User %s login successfully", c.GetString("requestId"), sess.UserID)
	c.JSON(http.StatusOK, sess)
}

func (a *AuthController) Session(c *gin.Context) {
	sess, err := a.auth.Current()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *AuthController) Logout(c *gin.Context) {
	if err := a.auth.Logout(); err != nil {
		abortWithError(c, a.logger, "logout", err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
