package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corporatepay-reconciliation/internal/approvals"
	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/internal/models"
	"corporatepay-reconciliation/internal/reconciler"
	"corporatepay-reconciliation/internal/reporter"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

func testTx(id, vendor string, status models.TransactionStatus, value int64, day int) models.Transaction {
	return models.Transaction{
		ID:         id,
		Type:       models.TransactionTypeSpend,
		Status:     status,
		Currency:   "UGX",
		Amount:     decimal.NewFromInt(value),
		Vendor:     vendor,
		Module:     "Rides",
		OccurredAt: time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func testLine(id, vendor string, value int64, day int) models.InvoiceLine {
	return models.InvoiceLine{
		ID:          id,
		InvoiceID:   "INV-1",
		Currency:    "UGX",
		Vendor:      vendor,
		Module:      "Rides",
		Amount:      decimal.NewFromInt(value),
		ServiceDate: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	prom := metrics.NewPrometheus()
	ws, err := reconciler.NewWorkspace(
		[]models.Transaction{
			testTx("T1", "SafeBoda", models.StatusPosted, 50000, 10),
			testTx("T2", "Uber", models.StatusPosted, 120000, 12),
			testTx("T3", "Glovo", models.StatusFailed, 30000, 14),
		},
		[]models.InvoiceLine{
			testLine("L1", "SafeBoda", 50000, 10),
			testLine("L2", "Bolt", 80000, 15),
		},
		&reconciler.Options{Clock: func() time.Time { return fixedNow }, Recorder: prom},
	)
	require.NoError(t, err)

	svc := approvals.NewService(approvals.NewMemoryStore(), &approvals.ServiceOptions{
		Clock:    func() time.Time { return fixedNow },
		Recorder: prom,
	})

	srv, err := NewServer(Params{
		Config:    &Config{Addr: ":0", Mode: gin.TestMode},
		Workspace: ws,
		Approvals: svc,
		Metrics:   prom,
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderActor, "tester")

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	payload, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error payload, got %s", w.Body.String())
	assert.NotEmpty(t, payload["category"])
	assert.NotEmpty(t, payload["message"])
	return payload["code"].(string)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestCreateMatch(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/matches", map[string]interface{}{
		"lineId": "L1", "transactionId": "T1", "amount": "50000", "note": "receipt checked",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	match := decode(t, w)["match"].(map[string]interface{})
	assert.Equal(t, "Manual", match["method"])
	assert.Equal(t, "50000", match["amount"])
	assert.Equal(t, "tester", match["createdBy"])

	w = do(t, srv, http.MethodDelete, "/api/v1/matches/"+match["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/v1/matches/"+match["id"].(string), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestCreateMatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"malformed body", `{"lineId":`, http.StatusBadRequest, "invalid_format"},
		{"missing line", map[string]interface{}{"transactionId": "T1", "amount": 10}, http.StatusUnprocessableEntity, "missing_field"},
		{"unknown line", map[string]interface{}{"lineId": "LX", "transactionId": "T1", "amount": 10}, http.StatusNotFound, "not_found"},
		{"zero amount", map[string]interface{}{"lineId": "L1", "transactionId": "T1", "amount": 0}, http.StatusUnprocessableEntity, "invalid_amount"},
		{"over line balance", map[string]interface{}{"lineId": "L1", "transactionId": "T2", "amount": 60000}, http.StatusUnprocessableEntity, "exceeds_balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			w := do(t, srv, http.MethodPost, "/api/v1/matches", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestAutoMatchAndReport(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/automatch", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode(t, w)
	assert.Len(t, outcome["matches"], 1)
	assert.Equal(t, []interface{}{"L2"}, outcome["unmatchedLines"])

	w = do(t, srv, http.MethodGet, "/api/v1/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	summary := report["summary"].(map[string]interface{})
	assert.EqualValues(t, 1, summary["fullyMatchedLines"])
	assert.EqualValues(t, 1, summary["autoMatches"])
}

func TestCandidates(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/lines/L1/candidates?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "50000", body["remaining"])
	candidates := body["candidates"].([]interface{})
	require.NotEmpty(t, candidates)
	first := candidates[0].(map[string]interface{})
	assert.Equal(t, "T1", first["transaction"].(map[string]interface{})["id"])

	w = do(t, srv, http.MethodGet, "/api/v1/lines/L1/candidates?limit=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "out_of_range", errorCode(t, w))

	w = do(t, srv, http.MethodGet, "/api/v1/lines/nope/candidates", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExceptionsWorkflow(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/exceptions/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"], "the failed charge is flagged")

	w = do(t, srv, http.MethodPost, "/api/v1/exceptions/scan", nil)
	assert.EqualValues(t, 0, decode(t, w)["count"], "scanning again raises nothing new")

	w = do(t, srv, http.MethodGet, "/api/v1/exceptions?type=FailedCharge&status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["exceptions"].([]interface{})
	require.Len(t, list, 1)
	id := list[0].(map[string]interface{})["id"].(string)

	w = do(t, srv, http.MethodPatch, "/api/v1/exceptions/"+id, map[string]string{"status": "Investigating"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Investigating", decode(t, w)["status"])

	w = do(t, srv, http.MethodPatch, "/api/v1/exceptions/"+id, map[string]string{"status": "Investigating"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, w))

	w = do(t, srv, http.MethodGet, "/api/v1/exceptions?type=Bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/exceptions", map[string]interface{}{
		"type": "Duplicate", "severity": "Medium", "title": "Possible double charge", "transactionId": "T2",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestTransactionTransitions(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/transactions/T3/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Pending", decode(t, w)["status"])

	w = do(t, srv, http.MethodPost, "/api/v1/transactions/T3/post", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Posted", decode(t, w)["status"])

	w = do(t, srv, http.MethodPost, "/api/v1/transactions/T1/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRulesAndMappings(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPut, "/api/v1/rules/vendor-loose", map[string]interface{}{
		"name": "Vendor loose", "enabled": true, "requireSameVendor": true, "dateWindowDays": 30, "minConfidence": 0.5, "allowPartialMatch": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "vendor-loose", decode(t, w)["id"])

	w = do(t, srv, http.MethodPut, "/api/v1/rules/broken", map[string]interface{}{"name": "Broken", "minConfidence": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPut, "/api/v1/mappings/map-bolt", map[string]interface{}{
		"scope": "Vendor", "key": "Bolt", "glCode": "6120", "enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "map-bolt", decode(t, w)["id"])
}

func TestExports(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/export/ledger.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), strings.Join(reporter.LedgerCSVHeader, ",")+"\n"))
	assert.Equal(t, 4, strings.Count(w.Body.String(), "\n"))

	w = do(t, srv, http.MethodGet, "/api/v1/export/journal.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "6100")

	w = do(t, srv, http.MethodGet, "/api/v1/export/report.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "unmatchedTransactions")

	w = do(t, srv, http.MethodGet, "/api/v1/export/report.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reporter.FormatXLSX.ContentType(), w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestApprovals(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, len(approvals.DemoItems()), decode(t, w)["count"])

	w = do(t, srv, http.MethodGet, "/api/v1/approvals?workflow=Travel%20Request&status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = do(t, srv, http.MethodGet, "/api/v1/approvals/workflows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"Budget Increase", "Purchase Order", "Travel Request", "Vendor Onboarding"}, decode(t, w)["workflows"])

	w = do(t, srv, http.MethodGet, "/api/v1/approvals/APR-1001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pending", decode(t, w)["status"])

	w = do(t, srv, http.MethodPatch, "/api/v1/approvals/APR-1001/status", map[string]string{"status": "approved", "comment": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item := decode(t, w)
	assert.Equal(t, "Approved", item["status"])
	require.Len(t, item["audit"], 1)
	assert.Equal(t, "tester", item["audit"].([]interface{})[0].(map[string]interface{})["actor"])

	w = do(t, srv, http.MethodPatch, "/api/v1/approvals/APR-1001/status", map[string]string{"status": "Rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPatch, "/api/v1/approvals/APR-1001/status", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "missing_field", errorCode(t, w))

	w = do(t, srv, http.MethodGet, "/api/v1/approvals/APR-0000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/api/v1/automatch", nil)
	w := do(t, srv, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))

	w = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `reconciler_http_requests_total{code="200",method="POST",route="/api/v1/automatch"} 1`)
	assert.Contains(t, body, "reconciler_automatch_runs_total 1")
	assert.Contains(t, body, `route="unmatched"`)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Addr: "", Mode: gin.TestMode}).Validate())
	assert.Error(t, (&Config{Addr: ":1", Mode: "fast"}).Validate())

	_, err := NewServer(Params{Config: &Config{Addr: ":1", Mode: gin.TestMode}})
	assert.Error(t, err, "a workspace is required")
}
