package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
)

// HeaderActor carries the identity asserted by the upstream auth layer.
const HeaderActor = "X-Actor"

const contextActorKey = "actor"

// ActorContext copies the actor header into the gin and request contexts.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor != "" {
			c.Set(contextActorKey, actor)
			c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	return c.GetString(contextActorKey)
}
