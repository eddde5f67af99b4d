package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListEvents(c *gin.Context) {
	items, err := s.eventSvc.ListPublished(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

func (s *Server) GetEventBySlug(c *gin.Context) {
	detail, err := s.eventSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
