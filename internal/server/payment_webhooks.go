package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/settlement"
)

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if webhookAcked(err) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookAcked reports errors that must still return 200 so the provider
// stops redelivering. Redelivery cannot change any of these outcomes, except
// a stock violation, which is acked anyway because the order can never settle.
func webhookAcked(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrEventIgnored),
		errors.Is(err, paymentdomain.ErrInvalidOrderRef),
		errors.Is(err, settlement.ErrStockInvariant):
		return true
	default:
		return false
	}
}
