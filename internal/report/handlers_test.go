package report

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4ndersonLin/scamledger/internal/address"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := NewService(NewMemoryStore(), address.NewMemoryStore(), &stubIntel{}, &countingInvalidator{}, nil)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func postReport(t *testing.T, r *gin.Engine, in *Input, clientIP string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = clientIP + ":52000"
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := postReport(t, r, validInput(), "203.0.113.7")
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Report struct {
			ID      string `json:"id"`
			Chain   string `json:"chain"`
			Address string `json:"address"`
			Source  string `json:"source"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Report.ID)
	assert.Equal(t, "ETH", body.Report.Chain)
	assert.Equal(t, "web", body.Report.Source)

	// Nothing reporter-identifying in the response.
	assert.NotContains(t, w.Body.String(), "fingerprint")
	assert.NotContains(t, w.Body.String(), "203.0.113.7")
}

func TestSubmitEndpointDuplicate(t *testing.T) {
	r := setupRouter(t)

	w := postReport(t, r, validInput(), "203.0.113.7")
	require.Equal(t, http.StatusCreated, w.Code)

	w = postReport(t, r, validInput(), "203.0.113.7")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_report")
}

func TestSubmitEndpointValidation(t *testing.T) {
	r := setupRouter(t)

	in := validInput()
	in.ScamType = "hustle"
	in.Description = ""

	w := postReport(t, r, in, "203.0.113.7")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	assert.Len(t, body.Details, 2)
}

func TestSubmitEndpointMalformedBody(t *testing.T) {
	r := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestRecentEndpoint(t *testing.T) {
	r := setupRouter(t)

	require.Equal(t, http.StatusCreated, postReport(t, r, validInput(), "203.0.113.1").Code)

	other := validInput()
	other.Address = "0xFFFF567890abcdef1234567890abcdef12345678"
	require.Equal(t, http.StatusCreated, postReport(t, r, other, "203.0.113.2").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/recent?limit=1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}
