package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
)

func (s *Server) GetOrder(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, orderdomain.ErrInvalidExternalID)
		return
	}

	order, err := s.orderSvc.GetByExternalID(c.Request.Context(), externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"order": order}
	commission, err := s.commissionSvc.GetByOrderID(c.Request.Context(), order.ID)
	switch {
	case err == nil:
		resp["commission"] = commission
	case !isNotFoundError(err):
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
