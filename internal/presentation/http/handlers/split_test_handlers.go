package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SplitTestHandlers serves the reconciled assignments to client code.
type SplitTestHandlers struct{}

func NewSplitTestHandlers() *SplitTestHandlers {
	return &SplitTestHandlers{}
}

// GetAssignments handles GET /api/v1/split-tests
func (h *SplitTestHandlers) GetAssignments(c *gin.Context) {
	tenantCtx, ok := requireTenant(c)
	if !ok {
		return
	}

	cohorts := map[string]string{}
	if state, ok := middleware.GetSplitTestState(c); ok {
		if assignments := state.Assignments(tenantCtx.SplitTestSettings().SessionKey); assignments != nil {
			cohorts = assignments
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"assignments": middleware.GetSplitTests(c),
		"cohorts":     cohorts,
	})
}
