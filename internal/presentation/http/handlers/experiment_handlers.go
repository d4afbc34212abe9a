package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/gin-gonic/gin"
)

// ExperimentHandlers contains all staff-only split test admin handlers
type ExperimentHandlers struct {
	experimentService *services.ExperimentService
	activeSetService  *services.ActiveSetService
	logger            *logging.ChanneledLogger
}

// NewExperimentHandlers creates experiment admin handlers with injected dependencies
func NewExperimentHandlers(experimentService *services.ExperimentService, activeSetService *services.ActiveSetService, logger *logging.ChanneledLogger) *ExperimentHandlers {
	return &ExperimentHandlers{
		experimentService: experimentService,
		activeSetService:  activeSetService,
		logger:            logger,
	}
}

// GetAllExperiments handles GET /api/v1/admin/experiments
func (h *ExperimentHandlers) GetAllExperiments(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	filter := splittest.ExperimentFilter{Search: c.Query("q")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active must be true or false"})
			return
		}
		filter.Active = &active
	}

	experiments, err := h.experimentService.List(c.Request.Context(), tenantCtx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiments": experiments,
		"count":       len(experiments),
	})
}

// GetExperimentByUUID handles GET /api/v1/admin/experiments/:uuid
func (h *ExperimentHandlers) GetExperimentByUUID(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	experiment, err := h.experimentService.Get(c.Request.Context(), tenantCtx, c.Param("uuid"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, experiment)
}

// CreateExperiment handles POST /api/v1/admin/experiments
func (h *ExperimentHandlers) CreateExperiment(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	var input services.ExperimentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	start := time.Now()
	experiment, err := h.experimentService.Create(c.Request.Context(), tenantCtx, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.SplitTest().Info("Experiment created", "tenantId", tenantCtx.TenantID, "uuid", experiment.UUID, "slug", experiment.Slug, "duration", time.Since(start))
	c.JSON(http.StatusCreated, experiment)
}

// UpdateExperiment handles PUT /api/v1/admin/experiments/:uuid
func (h *ExperimentHandlers) UpdateExperiment(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	var input services.ExperimentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	experiment, err := h.experimentService.Update(c.Request.Context(), tenantCtx, c.Param("uuid"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.SplitTest().Info("Experiment updated", "tenantId", tenantCtx.TenantID, "uuid", experiment.UUID, "active", experiment.IsActive)
	c.JSON(http.StatusOK, experiment)
}

// DeleteExperiment handles DELETE /api/v1/admin/experiments/:uuid
func (h *ExperimentHandlers) DeleteExperiment(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	uuid := c.Param("uuid")
	if err := h.experimentService.Delete(c.Request.Context(), tenantCtx, uuid); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.SplitTest().Info("Experiment deleted", "tenantId", tenantCtx.TenantID, "uuid", uuid)
	c.Status(http.StatusNoContent)
}

// CreateCohort handles POST /api/v1/admin/experiments/:uuid/cohorts
func (h *ExperimentHandlers) CreateCohort(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	var input services.CohortInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cohort, err := h.experimentService.AddCohort(c.Request.Context(), tenantCtx, c.Param("uuid"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.SplitTest().Info("Cohort created", "tenantId", tenantCtx.TenantID, "experiment", c.Param("uuid"), "uuid", cohort.UUID, "weight", cohort.Weight)
	c.JSON(http.StatusCreated, cohort)
}

// UpdateCohort handles PUT /api/v1/admin/cohorts/:uuid
func (h *ExperimentHandlers) UpdateCohort(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	var input services.CohortInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cohort, err := h.experimentService.UpdateCohort(c.Request.Context(), tenantCtx, c.Param("uuid"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cohort)
}

// DeleteCohort handles DELETE /api/v1/admin/cohorts/:uuid
func (h *ExperimentHandlers) DeleteCohort(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	if err := h.experimentService.DeleteCohort(c.Request.Context(), tenantCtx, c.Param("uuid")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostRebuildCache handles POST /api/v1/admin/cache/rebuild
func (h *ExperimentHandlers) PostRebuildCache(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	start := time.Now()
	snapshot, err := h.activeSetService.RebuildWithTrigger(c.Request.Context(), tenantCtx, metrics.TriggerManual)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"experiments": len(snapshot.ExperimentActiveUUIDs),
		"cohorts":     len(snapshot.CohortActiveUUIDs),
		"duration":    time.Since(start).String(),
	})
}

// GetActiveSet handles GET /api/v1/admin/active-set
func (h *ExperimentHandlers) GetActiveSet(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	snapshot, err := h.activeSetService.Snapshot(c.Request.Context(), tenantCtx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
