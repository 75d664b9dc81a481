package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	syncrundomain "github.com/smallbiznis/commissionhub/internal/syncrun/domain"
)

type startSyncRunRequest struct {
	Type string `json:"type"`
}

func (s *Server) StartSyncRun(c *gin.Context) {
	var req startSyncRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	typ := syncrundomain.Type(strings.TrimSpace(req.Type))
	if !typ.Valid() {
		AbortWithError(c, syncrundomain.ErrInvalidType)
		return
	}

	id, err := s.syncTrigger.Trigger(c.Request.Context(), typ)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"id": id.String(), "type": typ}})
}

// GetSyncRun reaps stale runs before answering, so a dead job reads as failed.
func (s *Server) GetSyncRun(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, syncrundomain.ErrInvalidID)
		return
	}

	view, err := s.syncRunSvc.Status(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
