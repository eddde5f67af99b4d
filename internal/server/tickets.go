package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListTickets(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.ticketSvc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": items})
}

func (s *Server) LookupTicket(c *gin.Context) {
	item, err := s.ticketSvc.LookupPublic(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) TicketQR(c *gin.Context) {
	png, err := s.ticketSvc.RenderQR(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
