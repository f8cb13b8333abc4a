package server

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createMatchRequest struct {
	LineID        string          `json:"lineId" binding:"required"`
	TransactionID string          `json:"transactionId" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note" binding:"max=500"`
	Actor         string          `json:"actor"`
}

type actorRequest struct {
	Actor string `json:"actor"`
}

type createExceptionRequest struct {
	Type          models.ExceptionType `json:"type" binding:"required"`
	Severity      models.Severity      `json:"severity" binding:"required"`
	Title         string               `json:"title" binding:"required,max=200"`
	Detail        string               `json:"detail"`
	LineID        string               `json:"lineId"`
	TransactionID string               `json:"transactionId"`
	Amount        *decimal.Decimal     `json:"amount"`
	Actor         string               `json:"actor"`
}

type updateExceptionRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
}

// bindOptionalJSON binds a body that may be omitted entirely
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !stderrors.Is(err, io.EOF) {
		return bindError(err)
	}
	return nil
}

// GetReport returns the full reconciliation report
func (s *Server) GetReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.workspace.Report())
}

// GetCandidates ranks transactions for one invoice line
func (s *Server) GetCandidates(c *gin.Context) {
	lineID := c.Param("id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			AbortWithError(c, errors.ValidationError(errors.CodeOutOfRange, "limit", raw, err).
				WithSuggestion("use a non-negative integer"))
			return
		}
		limit = n
	}

	candidates, err := s.workspace.Candidates(lineID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	remaining, err := s.workspace.LineRemaining(lineID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lineId":     lineID,
		"remaining":  remaining,
		"candidates": candidates,
	})
}

// CreateMatch commits a manual match
func (s *Server) CreateMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.workspace.CreateMatch(reconciler.MatchRequest{
		LineID:        strings.TrimSpace(req.LineID),
		TransactionID: strings.TrimSpace(req.TransactionID),
		Amount:        req.Amount,
		Actor:         actorFrom(c, req.Actor),
		Note:          req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// DeleteMatch removes a committed match
func (s *Server) DeleteMatch(c *gin.Context) {
	removed, err := s.workspace.RemoveMatch(c.Param("id"), actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, removed)
}

// RunAutoMatch runs one batch auto-match pass
func (s *Server) RunAutoMatch(c *gin.Context) {
	var req actorRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.workspace.RunAutoMatch(actorFrom(c, req.Actor)))
}

// ListExceptions lists exceptions, optionally by status and type
func (s *Server) ListExceptions(c *gin.Context) {
	var filter reconciler.ExceptionFilter

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseExceptionStatus(raw)
		if err != nil {
			AbortWithError(c, errors.ValidationError(errors.CodeInvalidData, "status", raw, err))
			return
		}
		filter.Status = status
	}
	if raw := c.Query("type"); raw != "" {
		t := models.ExceptionType(raw)
		if !t.IsValid() {
			AbortWithError(c, errors.ValidationError(errors.CodeInvalidData, "type", raw, nil).
				WithSuggestion("use FailedCharge, PartialPayment, Duplicate, Unmatched or RefundPending"))
			return
		}
		filter.Type = t
	}

	c.JSON(http.StatusOK, gin.H{"exceptions": s.workspace.ListExceptions(filter)})
}

// CreateException raises a manual exception
func (s *Server) CreateException(c *gin.Context) {
	var req createExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	item, err := s.workspace.CreateException(reconciler.ExceptionRequest{
		Type:          req.Type,
		Severity:      req.Severity,
		Title:         req.Title,
		Detail:        req.Detail,
		LineID:        req.LineID,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Actor:         actorFrom(c, req.Actor),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// ScanExceptions raises exceptions for ledger anomalies not yet tracked
func (s *Server) ScanExceptions(c *gin.Context) {
	var req actorRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	raised := s.workspace.ScanExceptions(actorFrom(c, req.Actor))
	c.JSON(http.StatusOK, gin.H{"raised": raised, "count": len(raised)})
}

// UpdateException moves an exception through its review workflow
func (s *Server) UpdateException(c *gin.Context) {
	var req updateExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	status, err := models.ParseExceptionStatus(req.Status)
	if err != nil {
		AbortWithError(c, errors.ValidationError(errors.CodeInvalidData, "status", req.Status, err).
			WithSuggestion("use Open, Investigating or Resolved"))
		return
	}

	item, err := s.workspace.UpdateExceptionStatus(c.Param("id"), status, actorFrom(c, req.Actor))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// PutRule creates or replaces an auto-match rule
func (s *Server) PutRule(c *gin.Context) {
	var rule models.AutoMatchRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	rule.ID = c.Param("id")

	saved, err := s.workspace.SaveRule(rule, actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// PutMapping creates or replaces an ERP mapping
func (s *Server) PutMapping(c *gin.Context) {
	var mapping models.ErpMapping
	if err := c.ShouldBindJSON(&mapping); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	mapping.ID = c.Param("id")

	saved, err := s.workspace.SaveMapping(mapping, actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// RetryTransaction moves a failed transaction back to pending
func (s *Server) RetryTransaction(c *gin.Context) {
	tx, err := s.workspace.RetryTransaction(c.Param("id"), actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// PostTransaction moves a pending transaction to posted
func (s *Server) PostTransaction(c *gin.Context) {
	tx, err := s.workspace.PostTransaction(c.Param("id"), actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}
