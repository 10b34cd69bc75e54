package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/reqctx-service/internal/app"
)

// RoutinesHandler runs caller-described routines in isolated sub-contexts.
type RoutinesHandler struct {
	service *app.RoutineService
	scope   app.RequestScope
}

// NewRoutinesHandler creates a new routines handler. scope resolves the
// caller's own context for the response envelope.
func NewRoutinesHandler(service *app.RoutineService, scope app.RequestScope) *RoutinesHandler {
	return &RoutinesHandler{
		service: service,
		scope:   scope,
	}
}

// RunRoutines handles POST /api/v1/routines
// Runs every routine concurrently in its own sub-context and returns what each
// one observed.
//
// @Summary Run routines in sub-contexts
// @Tags routines
// @Accept json
// @Produce json
// @Param request body dto.RoutinesRequest true "Routines to run"
// @Success 200 {object} dto.RoutinesResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /api/v1/routines [post]
func (h *RoutinesHandler) RunRoutines(c *gin.Context) {
	var req dto.RoutinesRequest

	if err := dto.BindAndValidate(c, &req); err != nil {
		switch {
		case errors.Is(err, dto.ErrBinding):
			dto.AbortWithErrorCode(c, dto.ErrorCodeBadRequest, "malformed request body")
		default:
			dto.RespondWithValidationErrors(c, dto.ValidationErrors(err))
		}

		return
	}

	ctx := c.Request.Context()

	results, err := h.service.Run(ctx, req.ToSpecs())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRoutinesResponse(h.scope.CorrelationID(ctx), h.scope.Routine(ctx), results))
}

// RegisterRoutes registers routine routes on the given router group.
func (h *RoutinesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/routines", h.RunRoutines)
}
