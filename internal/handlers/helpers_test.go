package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"coopledger/internal/services"
	"coopledger/internal/validator"
)

const (
	testCoopID  = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a00"
	testActor   = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a01"
	testHolder  = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a02"
	testShare   = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a03"
	testClass   = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a04"
	testTxnID   = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a05"
	testOtherID = "0190f7a4-6a51-7c1e-9a8e-5d2f3c4b1a06"
)

type auditEntry struct {
	actor, coopID, action, resourceType, resourceID string
}

type mockAuditService struct {
	entries []auditEntry
}

func (m *mockAuditService) Log(_ context.Context, actor, coopID, action, resourceType, resourceID, _ string, _ map[string]interface{}) {
	m.entries = append(m.entries, auditEntry{actor, coopID, action, resourceType, resourceID})
}

var _ services.AuditServicer = (*mockAuditService)(nil)

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectScope(actor, coopID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", actor)
		c.Set("coopID", coopID)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}
