// Package adminapi exposes the engine's administrative and query
// operations over HTTP.
package adminapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/labstack/echo/v4"
)

const (
	defaultLimit = 50
	maxLimit     = 1_000
	maxBlobBytes = 1 << 20
)

// Engine is the subset of *engine.Manager the handlers use.
type Engine interface {
	ResolveInterval(dataType string, ctx interval.Context) decision.Decision
	Recent(dataType string, limit int) []decision.Decision
	RecordedDataTypes() []string
	Policies() policy.Set
	UpdatePolicy(t tier.Tier, p policy.IntervalPolicy) error
	DataTypeTiers() map[string]tier.Tier
	SetDataTypeTier(dataType string, t tier.Tier) error
	ClearDataTypeTier(dataType string) bool
	Mode() mode.Mode
	ModeSince() time.Time
	EnterEmergency(reasons []string, overrides map[tier.Tier]uint64) error
	ExitEmergency() error
	EnterMaintenance(multiplier float64, restrictedTypes []string) error
	ExitMaintenance() error
	ExportConfig() ([]byte, error)
	ImportConfig(blob []byte) error
}

// AuditReader serves persisted history. audit.Sink satisfies it.
type AuditReader interface {
	RecentDecisions(ctx context.Context, dataType string, limit int) ([]decision.Decision, error)
	Transitions(ctx context.Context, limit int) ([]mode.Transition, error)
}

// Handler provides HTTP handlers for the admin API.
type Handler struct {
	engine Engine
	audit  AuditReader
}

// NewHandler creates a Handler. audit may be nil when auditing is disabled.
func NewHandler(eng Engine, audit AuditReader) *Handler {
	return &Handler{engine: eng, audit: audit}
}

// RegisterRoutes registers the admin routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/policies", h.ListPolicies)
	g.PUT("/policies/:tier", h.UpdatePolicy)

	g.GET("/data-types", h.ListDataTypes)
	g.PUT("/data-types/:name", h.SetDataTypeTier)
	g.DELETE("/data-types/:name", h.ClearDataTypeTier)

	g.GET("/mode", h.GetMode)
	g.POST("/mode/emergency", h.EnterEmergency)
	g.DELETE("/mode/emergency", h.ExitEmergency)
	g.POST("/mode/maintenance", h.EnterMaintenance)
	g.DELETE("/mode/maintenance", h.ExitMaintenance)

	g.POST("/resolve/:dataType", h.Resolve)
	g.GET("/history", h.HistoryDataTypes)
	g.GET("/history/:dataType", h.History)
	g.GET("/audit/decisions", h.AuditDecisions)
	g.GET("/audit/transitions", h.AuditTransitions)

	g.GET("/config", h.ExportConfig)
	g.PUT("/config", h.ImportConfig)
	g.POST("/config/validate", h.ValidateConfig)
}

type policyBody struct {
	BaseMs uint64 `json:"base_ms"`
	MinMs  uint64 `json:"min_ms"`
	MaxMs  uint64 `json:"max_ms"`
}

type tierBody struct {
	Tier string `json:"tier"`
}

type emergencyBody struct {
	Reasons   []string          `json:"reasons"`
	Overrides map[string]uint64 `json:"overrides"`
}

type maintenanceBody struct {
	Multiplier      float64  `json:"multiplier"`
	RestrictedTypes []string `json:"restricted_types"`
}

type resolveBody struct {
	SystemLoad         float64 `json:"system_load"`
	PatientCriticality string  `json:"patient_criticality"`
	RecentFailures     uint    `json:"recent_failures"`
	Urgency            string  `json:"urgency"`
	DataSizeMb         float64 `json:"data_size_mb"`
}

// ModeResponse describes the active mode.
type ModeResponse struct {
	Kind            mode.Kind         `json:"kind"`
	Since           time.Time         `json:"since"`
	Reasons         []string          `json:"reasons,omitempty"`
	Overrides       map[string]uint64 `json:"overrides,omitempty"`
	Multiplier      float64           `json:"multiplier,omitempty"`
	RestrictedTypes []string          `json:"restricted_types,omitempty"`
}

// ListPolicies handles GET /policies.
func (h *Handler) ListPolicies(c echo.Context) error {
	out := make(map[string]policy.IntervalPolicy, len(tier.All))
	for t, p := range h.engine.Policies() {
		out[t.String()] = p
	}
	return c.JSON(http.StatusOK, out)
}

// UpdatePolicy handles PUT /policies/:tier.
func (h *Handler) UpdatePolicy(c echo.Context) error {
	t, err := tierParam(c.Param("tier"))
	if err != nil {
		return err
	}
	var body policyBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := policy.IntervalPolicy{BaseMs: body.BaseMs, MinMs: body.MinMs, MaxMs: body.MaxMs}
	if err := h.engine.UpdatePolicy(t, p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListDataTypes handles GET /data-types.
func (h *Handler) ListDataTypes(c echo.Context) error {
	out := make(map[string]string)
	for dt, t := range h.engine.DataTypeTiers() {
		out[dt] = t.String()
	}
	return c.JSON(http.StatusOK, out)
}

// SetDataTypeTier handles PUT /data-types/:name.
func (h *Handler) SetDataTypeTier(c echo.Context) error {
	var body tierBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := tierParam(body.Tier)
	if err != nil {
		return err
	}
	name := c.Param("name")
	if err := h.engine.SetDataTypeTier(name, t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{name: t.String()})
}

// ClearDataTypeTier handles DELETE /data-types/:name.
func (h *Handler) ClearDataTypeTier(c echo.Context) error {
	if !h.engine.ClearDataTypeTier(c.Param("name")) {
		return echo.NewHTTPError(http.StatusNotFound, "no explicit tier for data type")
	}
	return c.NoContent(http.StatusNoContent)
}

// GetMode handles GET /mode.
func (h *Handler) GetMode(c echo.Context) error {
	return c.JSON(http.StatusOK, describeMode(h.engine.Mode(), h.engine.ModeSince()))
}

// EnterEmergency handles POST /mode/emergency.
func (h *Handler) EnterEmergency(c echo.Context) error {
	var body emergencyBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	overrides := make(map[tier.Tier]uint64, len(body.Overrides))
	for name, ms := range body.Overrides {
		t, err := tierParam(name)
		if err != nil {
			return err
		}
		overrides[t] = ms
	}
	if err := h.engine.EnterEmergency(body.Reasons, overrides); err != nil {
		return httpError(err)
	}
	return h.GetMode(c)
}

// ExitEmergency handles DELETE /mode/emergency.
func (h *Handler) ExitEmergency(c echo.Context) error {
	if err := h.engine.ExitEmergency(); err != nil {
		return httpError(err)
	}
	return h.GetMode(c)
}

// EnterMaintenance handles POST /mode/maintenance.
func (h *Handler) EnterMaintenance(c echo.Context) error {
	var body maintenanceBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.engine.EnterMaintenance(body.Multiplier, body.RestrictedTypes); err != nil {
		return httpError(err)
	}
	return h.GetMode(c)
}

// ExitMaintenance handles DELETE /mode/maintenance.
func (h *Handler) ExitMaintenance(c echo.Context) error {
	if err := h.engine.ExitMaintenance(); err != nil {
		return httpError(err)
	}
	return h.GetMode(c)
}

// Resolve handles POST /resolve/:dataType. An empty body resolves with
// neutral hints.
func (h *Handler) Resolve(c echo.Context) error {
	var body resolveBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	d := h.engine.ResolveInterval(c.Param("dataType"), interval.Context{
		SystemLoad:         body.SystemLoad,
		PatientCriticality: interval.ParseCriticality(body.PatientCriticality),
		RecentFailures:     body.RecentFailures,
		Urgency:            interval.ParseUrgency(body.Urgency),
		DataSizeMb:         body.DataSizeMb,
	})
	return c.JSON(http.StatusOK, d)
}

// HistoryDataTypes handles GET /history.
func (h *Handler) HistoryDataTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.RecordedDataTypes())
}

// History handles GET /history/:dataType.
func (h *Handler) History(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.engine.Recent(c.Param("dataType"), limit))
}

// AuditDecisions handles GET /audit/decisions.
func (h *Handler) AuditDecisions(c echo.Context) error {
	if h.audit == nil {
		return auditDisabled()
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	out, err := h.audit.RecentDecisions(c.Request().Context(), c.QueryParam("data_type"), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// AuditTransitions handles GET /audit/transitions.
func (h *Handler) AuditTransitions(c echo.Context) error {
	if h.audit == nil {
		return auditDisabled()
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	out, err := h.audit.Transitions(c.Request().Context(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// ExportConfig handles GET /config.
func (h *Handler) ExportConfig(c echo.Context) error {
	blob, err := h.engine.ExportConfig()
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, blob)
}

// ImportConfig handles PUT /config.
func (h *Handler) ImportConfig(c echo.Context) error {
	blob, err := readBlob(c)
	if err != nil {
		return err
	}
	if err := h.engine.ImportConfig(blob); err != nil {
		return blobError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ValidateConfig handles POST /config/validate.
func (h *Handler) ValidateConfig(c echo.Context) error {
	blob, err := readBlob(c)
	if err != nil {
		return err
	}
	if err := engine.ValidateConfig(blob); err != nil {
		return blobError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func describeMode(m mode.Mode, since time.Time) ModeResponse {
	resp := ModeResponse{Kind: m.Kind(), Since: since}
	switch md := m.(type) {
	case mode.Emergency:
		resp.Reasons = md.Reasons()
		overrides := md.Overrides()
		if len(overrides) > 0 {
			resp.Overrides = make(map[string]uint64, len(overrides))
			for t, ms := range overrides {
				resp.Overrides[t.String()] = ms
			}
		}
	case mode.Maintenance:
		resp.Multiplier = md.Multiplier()
		resp.RestrictedTypes = md.RestrictedTypes()
	}
	return resp
}

func tierParam(s string) (tier.Tier, error) {
	t, ok := tier.Parse(s)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "unknown tier "+strconv.Quote(s))
	}
	return t, nil
}

func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func readBlob(c echo.Context) ([]byte, error) {
	blob, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBlobBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(blob) > maxBlobBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "configuration blob too large")
	}
	return blob, nil
}

// httpError maps a coded engine error onto an HTTP status.
func httpError(err error) error {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrInvalidPolicy, errors.ErrInvalidTier, errors.ErrInvalidArgument,
		errors.ErrDecodeConfig, errors.ErrUnsupportedVersion:
		status = http.StatusBadRequest
	case errors.ErrInvalidMode:
		status = http.StatusConflict
	}
	return codedError(status, err)
}

// blobError reports every rejection of a configuration blob as a bad
// request, including mode errors that httpError treats as conflicts.
func blobError(err error) error {
	if errors.CodeOf(err) == errors.ErrInternal {
		return httpError(err)
	}
	return codedError(http.StatusBadRequest, err)
}

func auditDisabled() error {
	return codedError(http.StatusServiceUnavailable,
		errors.New().WithMessage(errors.ErrUnavailable, "audit is disabled"))
}

func codedError(status int, err error) error {
	body := map[string]string{
		"error_code": string(errors.CodeOf(err)),
		"message":    err.Error(),
	}
	var e errors.Error
	if errors.As(err, &e) && e.Data() != nil {
		body["detail"] = fmt.Sprint(e.Data())
	}
	return echo.NewHTTPError(status, body)
}
