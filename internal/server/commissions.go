package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	commissiondomain "github.com/smallbiznis/commissionhub/internal/commission/domain"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
	"go.uber.org/zap"
)

type adjustCommissionRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type markPaidRequest struct {
	Note       string `json:"note"`
	ReceiptRef string `json:"receipt_ref"`
}

type bulkCommissionRequest struct {
	IDs        []string `json:"ids"`
	Note       string   `json:"note"`
	ReceiptRef string   `json:"receipt_ref"`
}

type recalculateRequest struct {
	OrderIDs []string `json:"order_ids"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query commissiondomain.ListCommissionRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	query.Status = strings.TrimSpace(query.Status)
	query.AgentID = strings.TrimSpace(query.AgentID)

	resp, err := s.commissionSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCommission(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}

	resp, err := s.commissionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveCommission(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}

	resp, err := s.commissionSvc.Approve(c.Request.Context(), commissiondomain.ApproveRequest{
		ID:    id,
		Actor: actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AdjustCommission(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}
	var req adjustCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	resp, err := s.commissionSvc.Adjust(c.Request.Context(), commissiondomain.AdjustRequest{
		ID:     id,
		Actor:  actorFrom(c),
		Amount: *req.Amount,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkCommissionPaid(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}
	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.MarkPaid(c.Request.Context(), commissiondomain.MarkPaidRequest{
		ID:         id,
		Actor:      actorFrom(c),
		Note:       strings.TrimSpace(req.Note),
		ReceiptRef: strings.TrimSpace(req.ReceiptRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommission(c *gin.Context) {
	id, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}

	if err := s.commissionSvc.Delete(c.Request.Context(), commissiondomain.DeleteRequest{
		ID:    id,
		Actor: actorFrom(c),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) BulkApproveCommissions(c *gin.Context) {
	var req bulkCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ids, ok := parseSnowflakeIDs(req.IDs)
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}

	resp, err := s.commissionSvc.BulkApprove(c.Request.Context(), commissiondomain.BulkApproveRequest{
		IDs:   ids,
		Actor: actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkMarkCommissionsPaid(c *gin.Context) {
	var req bulkCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ids, ok := parseSnowflakeIDs(req.IDs)
	if !ok {
		AbortWithError(c, commissiondomain.ErrInvalidID)
		return
	}

	resp, err := s.commissionSvc.BulkMarkPaid(c.Request.Context(), commissiondomain.BulkMarkPaidRequest{
		IDs:        ids,
		Actor:      actorFrom(c),
		Note:       strings.TrimSpace(req.Note),
		ReceiptRef: strings.TrimSpace(req.ReceiptRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecalculateCommissions authorizes the actor up front and runs the pass in
// the background.
func (s *Server) RecalculateCommissions(c *gin.Context) {
	var req recalculateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	orderIDs, ok := parseSnowflakeIDs(req.OrderIDs)
	if !ok {
		AbortWithError(c, newValidationError("order_ids", "invalid_order_ids", "invalid order_ids"))
		return
	}

	actor := actorFrom(c)
	ctx := c.Request.Context()
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectCommission, authorization.ActionCommissionRecalculate); err != nil {
		AbortWithError(c, err)
		return
	}

	err := s.queue.Enqueue(jobqueue.Job{
		Name:      "recalculate_commissions",
		Key:       actor,
		RequestID: obscontext.RequestIDFromContext(ctx),
		Timeout:   s.cfg.SyncStaleThreshold,
		Run: func(jobCtx context.Context) error {
			result, err := s.orderSvc.Recalculate(jobCtx, orderdomain.RecalculateRequest{
				Actor:    actor,
				OrderIDs: orderIDs,
			})
			s.log.Info("recalculation finished",
				zap.String("actor", actor),
				zap.Int("processed", result.Processed),
				zap.Int("created", result.Created),
				zap.Int("updated", result.Updated),
				zap.Int("skipped_paid", result.SkippedPaid),
				zap.Int("failed", result.Failed),
			)
			return err
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
