package server

import (
	"net/http"

	"corporatepay-reconciliation/internal/approvals"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/gin-gonic/gin"
)

type updateApprovalRequest struct {
	Status  string `json:"status" binding:"required"`
	Actor   string `json:"actor"`
	Comment string `json:"comment" binding:"max=1000"`
}

func parseApprovalStatus(raw string) (approvals.Status, error) {
	status, err := approvals.ParseStatus(raw)
	if err != nil {
		return "", errors.ValidationError(errors.CodeInvalidData, "status", raw, err).
			WithSuggestion("use Pending, Approved, Rejected or Escalated")
	}
	return status, nil
}

// ListApprovals lists the inbox, optionally by workflow and status
func (s *Server) ListApprovals(c *gin.Context) {
	filter := approvals.Filter{Workflow: c.Query("workflow")}
	if raw := c.Query("status"); raw != "" {
		status, err := parseApprovalStatus(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.Status = status
	}

	items, err := s.approvals.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": items, "count": len(items)})
}

// GetWorkflows lists the distinct workflow names
func (s *Server) GetWorkflows(c *gin.Context) {
	workflows, err := s.approvals.GetWorkflows(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

// GetApproval returns one approval item
func (s *Server) GetApproval(c *gin.Context) {
	item, err := s.approvals.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateApprovalStatus records a decision on an approval item
func (s *Server) UpdateApprovalStatus(c *gin.Context) {
	var req updateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	status, err := parseApprovalStatus(req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.approvals.UpdateStatus(c.Request.Context(), c.Param("id"), status, actorFrom(c, req.Actor), req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
