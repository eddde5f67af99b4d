package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
)

func (s *Server) GetOrderByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orderID, err := parseID(c.Param("id"))
	if err != nil {
		// An opaque id that does not parse can never match an order.
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	summary, err := s.orderSvc.GetForUser(c.Request.Context(), userID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
