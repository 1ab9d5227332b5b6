package adminapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/mutker/syncinterval/internal/adminapi"
	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAudit struct {
	decisions []decision.Decision
	lastType  string
	lastLimit int
}

func (f *fakeAudit) RecentDecisions(_ context.Context, dataType string, limit int) ([]decision.Decision, error) {
	f.lastType, f.lastLimit = dataType, limit
	return f.decisions, nil
}

func (*fakeAudit) Transitions(context.Context, int) ([]mode.Transition, error) {
	return []mode.Transition{}, nil
}

func newTestServer(t *testing.T, audit adminapi.AuditReader) (*echo.Echo, *engine.Manager) {
	t.Helper()
	m, err := engine.New(engine.DefaultConfig(), engine.WithLogger(logger.Nop()))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv := adminapi.NewServer(adminapi.DefaultConfig(), adminapi.NewHandler(m, audit), reg, logger.Nop())
	return srv.Echo(), m
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error_code"]
}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicies(t *testing.T) {
	e, m := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/v1/policies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]policy.IntervalPolicy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, policy.Defaults()[tier.Critical], got["critical"])
	assert.Len(t, got, 3)

	rec = do(e, http.MethodPut, "/api/v1/policies/critical", `{"base_ms":100,"min_ms":200,"max_ms":300}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_policy", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "min=200 base=100 max=300")
	assert.Equal(t, policy.Defaults()[tier.Critical], m.Policy(tier.Critical))

	rec = do(e, http.MethodPut, "/api/v1/policies/critical", `{"base_ms":2000,"min_ms":500,"max_ms":9000}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2_000), m.Policy(tier.Critical).BaseMs)

	rec = do(e, http.MethodPut, "/api/v1/policies/urgent", `{"base_ms":1,"min_ms":1,"max_ms":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataTypeTiers(t *testing.T) {
	e, m := newTestServer(t, nil)

	rec := do(e, http.MethodPut, "/api/v1/data-types/imaging", `{"tier":"nonEssential"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tier.NonEssential, m.Classify("imaging"))

	rec = do(e, http.MethodGet, "/api/v1/data-types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "nonEssential", got["imaging"])
	assert.Equal(t, "critical", got["vitals"])

	rec = do(e, http.MethodDelete, "/api/v1/data-types/imaging", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, tier.Default, m.Classify("imaging"))

	rec = do(e, http.MethodDelete, "/api/v1/data-types/imaging", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPut, "/api/v1/data-types/imaging", `{"tier":"gold"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModeLifecycle(t *testing.T) {
	e, m := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/mode/emergency", `{"reasons":["mass casualty"],"overrides":{"critical":2000}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp adminapi.ModeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, mode.KindEmergency, resp.Kind)
	assert.Equal(t, map[string]uint64{"critical": 2_000}, resp.Overrides)
	assert.Equal(t, []string{"mass casualty"}, resp.Reasons)

	rec = do(e, http.MethodPost, "/api/v1/mode/maintenance", `{"multiplier":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_mode", errorCode(t, rec))

	rec = do(e, http.MethodDelete, "/api/v1/mode/maintenance", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodDelete, "/api/v1/mode/emergency", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mode.KindNormal, m.Mode().Kind())

	rec = do(e, http.MethodPost, "/api/v1/mode/maintenance", `{"multiplier":3,"restricted_types":["billing"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, mode.KindMaintenance, resp.Kind)
	assert.Equal(t, 3.0, resp.Multiplier)
	assert.Equal(t, []string{"billing"}, resp.RestrictedTypes)

	rec = do(e, http.MethodGet, "/api/v1/mode", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmergencyOverrideOutOfBounds(t *testing.T) {
	e, m := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/mode/emergency", `{"reasons":["x"],"overrides":{"critical":10}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, mode.KindNormal, m.Mode().Kind())

	rec = do(e, http.MethodPost, "/api/v1/mode/emergency", `{"reasons":["x"],"overrides":{"platinum":2000}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveAndHistory(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/resolve/vitals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var d decision.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, tier.Critical, d.Tier)
	assert.Equal(t, uint64(5_000), d.FinalMs)

	rec = do(e, http.MethodPost, "/api/v1/resolve/vitals", `{"urgency":"urgent"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, uint64(2_500), d.FinalMs)

	rec = do(e, http.MethodGet, "/api/v1/history/vitals?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []decision.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, d.ID, recent[0].ID)

	rec = do(e, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["vitals"]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/v1/history/vitals?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	e, m := newTestServer(t, nil)
	require.NoError(t, m.EnterMaintenance(2, []string{"analytics"}))

	rec := do(e, http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	rec = do(e, http.MethodPost, "/api/v1/config/validate", exported)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, m.ExitMaintenance())
	rec = do(e, http.MethodPut, "/api/v1/config", exported)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, mode.KindMaintenance, m.Mode().Kind())

	again, err := m.ExportConfig()
	require.NoError(t, err)
	assert.Equal(t, exported, string(again))
}

func TestConfigImportRejected(t *testing.T) {
	e, m := newTestServer(t, nil)
	before, err := m.ExportConfig()
	require.NoError(t, err)

	rec := do(e, http.MethodPut, "/api/v1/config", `{"version":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decode_config_failed", errorCode(t, rec))

	rec = do(e, http.MethodPut, "/api/v1/config", `{"version":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_config_version", errorCode(t, rec))

	blob := strings.Replace(string(before), `"kind": "normal"`, `"kind": "maintenance", "multiplier": 0.5`, 1)
	rec = do(e, http.MethodPost, "/api/v1/config/validate", blob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_mode", errorCode(t, rec))

	after, err := m.ExportConfig()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAuditEndpoints(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec := do(e, http.MethodGet, "/api/v1/audit/decisions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", errorCode(t, rec))

	fa := &fakeAudit{decisions: []decision.Decision{{DataType: "labs", Tier: tier.Default, Mode: mode.KindNormal}}}
	e, _ = newTestServer(t, fa)

	rec = do(e, http.MethodGet, "/api/v1/audit/decisions?data_type=labs&limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "labs", fa.lastType)
	assert.Equal(t, 1_000, fa.lastLimit)

	rec = do(e, http.MethodGet, "/api/v1/audit/transitions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
