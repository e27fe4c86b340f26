package server

import (
	"net/http"

	"github.com/dobrv4er/woomfit/internal/api"
	"github.com/dobrv4er/woomfit/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok"})
}

// TestNotify ставит проверочное сообщение в очередь Telegram-уведомлений.
func TestNotify(notifier *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		text := c.Query("text")
		if text == "" {
			text = "Проверка связи: уведомления работают"
		}

		notifier.Send(c.Request.Context(), text)
		c.JSON(http.StatusOK, api.MessageResponse{Message: "Notification queued"})
	}
}

func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
