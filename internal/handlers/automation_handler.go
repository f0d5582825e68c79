package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"opsflow/internal/audit"
	"opsflow/internal/automation"
	"opsflow/internal/metrics"
	"opsflow/internal/models"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// EventBridge is the intake slice of the automation service.
type EventBridge interface {
	HandleEvent(ctx context.Context, evt models.DomainEvent) (automation.BridgeResult, error)
}

// RunReader is the read-only view over persisted runs.
type RunReader interface {
	FindRun(ctx context.Context, runID string) (*models.AutomationRun, error)
	ListRuns(ctx context.Context, companyID string, limit int) ([]models.AutomationRun, error)
}

// AutomationHandler exposes the engine over HTTP: an event intake endpoint
// mirroring the bus consumer, and read-only inspection of runs, audit
// records and metrics. Rule CRUD is owned by the surrounding platform.
type AutomationHandler struct {
	bridge    EventBridge
	runs      RunReader
	records   audit.Reader
	collector *metrics.Collector
	redactor  *audit.Redactor
	audience  audit.Audience
	logger    *logrus.Logger
}

func NewAutomationHandler(
	bridge EventBridge,
	runs RunReader,
	records audit.Reader,
	collector *metrics.Collector,
	redactor *audit.Redactor,
	defaultAudience audit.Audience,
	logger *logrus.Logger,
) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	if redactor == nil {
		redactor = audit.DefaultRedactor()
	}
	if defaultAudience == "" {
		defaultAudience = audit.AudienceEndUser
	}
	return &AutomationHandler{
		bridge:    bridge,
		runs:      runs,
		records:   records,
		collector: collector,
		redactor:  redactor,
		audience:  defaultAudience,
		logger:    logger,
	}
}

// RegisterRoutes mounts the automation routes on the given group.
func (h *AutomationHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/events", h.IngestEvent)
	group.GET("/automation/runs", h.ListRuns)
	group.GET("/automation/runs/:id", h.GetRun)
	group.GET("/automation/metrics", h.GetMetrics)
	group.GET("/automation/audit", h.ListAudit)
}

// IngestEvent accepts a domain event over HTTP and hands it to the bridge.
// An event without a registered trigger is acknowledged with handled=false.
func (h *AutomationHandler) IngestEvent(c *gin.Context) {
	var evt models.DomainEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid event", Message: err.Error()})
		return
	}
	if evt.Type == "" || evt.CompanyID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid event", Message: "type and companyId are required"})
		return
	}
	if evt.Source == "" {
		evt.Source = models.SourceAPI
	}

	result, err := h.bridge.HandleEvent(c.Request.Context(), evt)
	if err != nil {
		if errors.Is(err, automation.ErrMissingCompany) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Trigger misconfigured", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Event processing failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *AutomationHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.runs.ListRuns(c.Request.Context(), c.Query("company_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list runs", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun returns one run with its trace projected for the requested
// audience: raw trace plus derived summary and narrative, all redacted.
func (h *AutomationHandler) GetRun(c *gin.Context) {
	run, err := h.runs.FindRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, automation.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load run", Message: err.Error()})
		return
	}

	response := gin.H{"run": run}
	var trace models.RunTrace
	if run.Trace != "" && json.Unmarshal([]byte(run.Trace), &trace) == nil {
		audience := h.requestAudience(c)
		response["summary"] = h.redactDocument(audience, audit.Summarize(trace))
		response["trace"] = h.redactDocument(audience, trace)
		// The narrative quotes rule names and failure detail, so it is only
		// rendered for operator audiences.
		if audience == audit.AudienceInternal || audience == audit.AudienceAdmin {
			response["narrative"] = audit.Narrative(trace)
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *AutomationHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Snapshot())
}

func (h *AutomationHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.records.ListRecords(c.Request.Context(), c.Query("tenant_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list audit records", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *AutomationHandler) requestAudience(c *gin.Context) audit.Audience {
	if a := c.Query("audience"); a != "" {
		return audit.Audience(a)
	}
	return h.audience
}

// redactDocument lowers a typed view to a JSON document and applies the
// audience policy. Redaction failures degrade to a fully redacted document,
// never to leaking fields.
func (h *AutomationHandler) redactDocument(audience audit.Audience, view interface{}) map[string]interface{} {
	raw, err := json.Marshal(view)
	if err != nil {
		return map[string]interface{}{}
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]interface{}{}
	}
	return h.redactor.Redact(audience, doc)
}
