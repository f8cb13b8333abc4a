package server

import (
	"bytes"
	"fmt"
	"net/http"

	"corporatepay-reconciliation/internal/reporter"
	"corporatepay-reconciliation/pkg/errors"

	"github.com/gin-gonic/gin"
)

func attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, body)
}

// ExportLedger downloads the ledger as CSV
func (s *Server) ExportLedger(c *gin.Context) {
	var buf bytes.Buffer
	if err := reporter.WriteLedgerCSV(&buf, s.workspace.Snapshot().Transactions); err != nil {
		AbortWithError(c, errors.InternalError(errors.CodeUnexpectedError, "ledger export", err))
		return
	}
	s.workspace.RecordExport("ledger.csv", actorFrom(c, ""))
	attachment(c, "ledger.csv", "text/csv", buf.Bytes())
}

// ExportJournal downloads the ERP journal as CSV
func (s *Server) ExportJournal(c *gin.Context) {
	var buf bytes.Buffer
	if err := reporter.WriteJournalCSV(&buf, s.workspace.Journal()); err != nil {
		AbortWithError(c, errors.InternalError(errors.CodeUnexpectedError, "journal export", err))
		return
	}
	s.workspace.RecordExport("journal.csv", actorFrom(c, ""))
	attachment(c, "erp-journal.csv", "text/csv", buf.Bytes())
}

func (s *Server) exportReport(format reporter.OutputFormat, filename string) gin.HandlerFunc {
	return func(c *gin.Context) {
		config := reporter.DefaultReportConfig()
		config.Format = format

		generator, err := reporter.NewReportGenerator(config)
		if err != nil {
			AbortWithError(c, errors.InternalError(errors.CodeUnexpectedError, "report export", err))
			return
		}

		var buf bytes.Buffer
		if err := generator.GenerateReport(s.workspace.Report(), &buf); err != nil {
			AbortWithError(c, errors.InternalError(errors.CodeUnexpectedError, "report export", err))
			return
		}
		s.workspace.RecordExport(filename, actorFrom(c, ""))
		attachment(c, filename, format.ContentType(), buf.Bytes())
	}
}
