package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"github.com/smallbiznis/commissionhub/internal/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 2 << 20

func (s *Server) HandleOrderWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(body) > maxWebhookBody {
		s.log.Warn("order webhook body too large", zap.Int("limit_bytes", maxWebhookBody))
		AbortWithError(c, ErrPayloadTooLarge)
		return
	}

	result, err := s.webhooks.Receive(c.Request.Context(), webhook.Delivery{
		Body:       body,
		Signature:  upstream.SignatureFromHeaders(c.Request.Header),
		DeliveryID: upstream.DeliveryIDFromHeaders(c.Request.Header),
	})
	if result.OrderExternalID != "" {
		c.Set("order_external_id", result.OrderExternalID)
	}
	if err != nil {
		s.log.Warn("order webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
