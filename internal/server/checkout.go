package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
)

type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items"`
}

type CheckoutItemRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int64  `json:"quantity"`
}

func (s *Server) Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lines := make([]orderdomain.CheckoutLine, 0, len(req.Items))
	for _, item := range req.Items {
		ticketTypeID, err := parseID(item.TicketTypeID)
		if err != nil {
			AbortWithError(c, newValidationError("ticket_type_id", "invalid_ticket_type_id", "invalid ticket type id"))
			return
		}
		lines = append(lines, orderdomain.CheckoutLine{
			TicketTypeID: ticketTypeID,
			Quantity:     item.Quantity,
		})
	}

	// One in-flight checkout per user keeps retry storms from piling up
	// pending orders.
	if s.limiter != nil && s.limiter.Enabled() {
		token, locked, err := s.limiter.TryLockCheckout(c.Request.Context(), userID.String())
		if err == nil {
			if !locked {
				AbortWithError(c, ErrRateLimited)
				return
			}
			defer func() {
				_ = s.limiter.ReleaseCheckout(c.Request.Context(), userID.String(), token)
			}()
		}
	}

	result, err := s.orderSvc.Checkout(c.Request.Context(), userID, lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
