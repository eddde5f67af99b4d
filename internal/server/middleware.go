package server

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "user_id"

// AuthRequired resolves the session cookie into a user id. Handlers behind it
// can call currentUserID without a second lookup.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	raw, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := raw.(snowflake.ID)
	return id, ok
}

// CheckoutRateLimit throttles checkout per user. Without Redis the limiter is
// absent and checkout runs unthrottled.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		userID, ok := currentUserID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, err := s.limiter.AllowCheckout(c.Request.Context(), userID.String())
		if err != nil {
			// Limiter backend trouble should not take checkout down.
			c.Next()
			return
		}
		if !allowed {
			s.recordRateLimitDenied(c.Request.Context(), "checkout")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// PublicLookupRateLimit throttles unauthenticated ticket lookups per caller
// address. The in-process limiter backstops deployments without Redis.
func (s *Server) PublicLookupRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && s.limiter.Enabled() {
			allowed, err := s.limiter.AllowPublicLookup(c.Request.Context(), c.ClientIP())
			if err == nil && !allowed {
				s.recordRateLimitDenied(c.Request.Context(), "public_lookup")
				AbortWithError(c, ErrRateLimited)
				return
			}
			c.Next()
			return
		}

		if !s.lookupLimiter.allow(c.ClientIP()) {
			s.recordRateLimitDenied(c.Request.Context(), "public_lookup")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) recordRateLimitDenied(ctx context.Context, endpoint string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "rate")
}
