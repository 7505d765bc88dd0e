package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/careops/services/automation/internal/models"
	"example.com/careops/services/automation/internal/services"
	"example.com/careops/services/automation/internal/tracing"
)

// AutomationHandler handles rule management, the audit trail, suppression
// and the public form-submission endpoint.
type AutomationHandler struct {
	automation *services.AutomationService
	tracer     tracing.Tracer
}

// NewAutomationHandler creates a new automation handler.
func NewAutomationHandler(automation *services.AutomationService, tracer tracing.Tracer) *AutomationHandler {
	return &AutomationHandler{
		automation: automation,
		tracer:     tracer,
	}
}

// RuleRequest is a rule create/update payload.
type RuleRequest struct {
	Name     string            `json:"name" binding:"required"`
	Trigger  models.Trigger    `json:"trigger" binding:"required"`
	Action   models.Action     `json:"action" binding:"required"`
	Config   models.RuleConfig `json:"config"`
	IsActive *bool             `json:"is_active"`
}

func (r RuleRequest) toInput() services.RuleInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return services.RuleInput{
		Name:     r.Name,
		Trigger:  r.Trigger,
		Action:   r.Action,
		Config:   r.Config,
		IsActive: active,
	}
}

// ActivateRequest toggles a rule.
type ActivateRequest struct {
	Active bool `json:"active"`
}

// FireTriggerRequest is a manual trigger payload.
type FireTriggerRequest struct {
	Trigger models.Trigger    `json:"trigger" binding:"required"`
	Payload map[string]string `json:"payload"`
}

// SubmitFormRequest is a public form submission payload.
type SubmitFormRequest struct {
	ContactID *uuid.UUID      `json:"contact_id"`
	Answers   json.RawMessage `json:"answers"`
}

// HandleCreateRule handles POST /workspaces/:workspace_id/rules.
func (h *AutomationHandler) HandleCreateRule(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.automation.CreateRule(c.Request.Context(), workspaceID, req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// HandleUpdateRule handles PUT /workspaces/:workspace_id/rules/:rule_id.
func (h *AutomationHandler) HandleUpdateRule(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "rule_id")
	if !ok {
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.automation.UpdateRule(c.Request.Context(), workspaceID, ruleID, req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// HandleActivateRule handles POST /workspaces/:workspace_id/rules/:rule_id/activate.
func (h *AutomationHandler) HandleActivateRule(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "rule_id")
	if !ok {
		return
	}
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.automation.SetRuleActive(c.Request.Context(), workspaceID, ruleID, req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// HandleGetRule handles GET /workspaces/:workspace_id/rules/:rule_id.
func (h *AutomationHandler) HandleGetRule(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	ruleID, ok := pathUUID(c, "rule_id")
	if !ok {
		return
	}
	rule, err := h.automation.GetRule(c.Request.Context(), workspaceID, ruleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// HandleListRules handles GET /workspaces/:workspace_id/rules.
func (h *AutomationHandler) HandleListRules(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	rules, err := h.automation.ListRules(c.Request.Context(), workspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// HandleSeedDefaults handles POST /workspaces/:workspace_id/seed-rules.
func (h *AutomationHandler) HandleSeedDefaults(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	count, err := h.automation.SeedDefaults(c.Request.Context(), workspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seeded": count})
}

// HandleListLogs handles GET /workspaces/:workspace_id/logs.
func (h *AutomationHandler) HandleListLogs(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	logs, err := h.automation.ListLogs(c.Request.Context(), workspaceID, intQuery(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// HandleSearchLogs handles GET /workspaces/:workspace_id/logs/search?q=term.
func (h *AutomationHandler) HandleSearchLogs(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-logs")
	defer h.tracer.EndTransaction(txn)

	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	docs, err := h.automation.SearchLogs(c.Request.Context(), workspaceID, c.Query("q"), intQuery(c, "size", 100))
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// HandleFireTrigger handles POST /workspaces/:workspace_id/triggers.
func (h *AutomationHandler) HandleFireTrigger(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-fire-trigger")
	defer h.tracer.EndTransaction(txn)

	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	var req FireTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.AddAttribute(txn, "trigger", string(req.Trigger))

	if err := h.automation.FireTrigger(c.Request.Context(), workspaceID, req.Trigger, req.Payload); err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"fired": true})
}

// HandlePause handles POST /workspaces/:workspace_id/contacts/:contact_id/pause.
func (h *AutomationHandler) HandlePause(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	contactID, ok := pathUUID(c, "contact_id")
	if !ok {
		return
	}
	if err := h.automation.PauseAutomation(c.Request.Context(), workspaceID, contactID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// HandleResume handles POST /workspaces/:workspace_id/contacts/:contact_id/resume.
func (h *AutomationHandler) HandleResume(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	contactID, ok := pathUUID(c, "contact_id")
	if !ok {
		return
	}
	if err := h.automation.ResumeAutomation(c.Request.Context(), workspaceID, contactID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// HandleStaffReply handles POST /workspaces/:workspace_id/contacts/:contact_id/staff-reply.
func (h *AutomationHandler) HandleStaffReply(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	contactID, ok := pathUUID(c, "contact_id")
	if !ok {
		return
	}
	if err := h.automation.StaffReply(c.Request.Context(), workspaceID, contactID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// HandleSubmitForm handles POST /f/:form_id/submissions.
func (h *AutomationHandler) HandleSubmitForm(c *gin.Context) {
	formID, ok := pathUUID(c, "form_id")
	if !ok {
		return
	}
	var req SubmitFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := h.automation.SubmitForm(c.Request.Context(), formID, req.ContactID, req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// RegisterRoutes registers the handler's routes.
func (h *AutomationHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/f/:form_id/submissions", h.HandleSubmitForm)

	staff := router.Group("/workspaces/:workspace_id")
	{
		staff.GET("/rules", h.HandleListRules)
		staff.POST("/rules", h.HandleCreateRule)
		staff.POST("/seed-rules", h.HandleSeedDefaults)
		staff.GET("/rules/:rule_id", h.HandleGetRule)
		staff.PUT("/rules/:rule_id", h.HandleUpdateRule)
		staff.POST("/rules/:rule_id/activate", h.HandleActivateRule)
		staff.GET("/logs", h.HandleListLogs)
		staff.GET("/logs/search", h.HandleSearchLogs)
		staff.POST("/triggers", h.HandleFireTrigger)
		staff.POST("/contacts/:contact_id/pause", h.HandlePause)
		staff.POST("/contacts/:contact_id/resume", h.HandleResume)
		staff.POST("/contacts/:contact_id/staff-reply", h.HandleStaffReply)
	}
}
