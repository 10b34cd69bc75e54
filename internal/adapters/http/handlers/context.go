package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/reqctx-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
)

// ContextHandler exposes the request context resolved for each request.
type ContextHandler struct {
	provider *reqctx.Provider
}

// NewContextHandler creates a new context handler.
func NewContextHandler(provider *reqctx.Provider) *ContextHandler {
	return &ContextHandler{
		provider: provider,
	}
}

func (h *ContextHandler) respond(c *gin.Context) {
	ctx := c.Request.Context()

	c.JSON(http.StatusOK, dto.ContextResponse{
		CorrelationID:     h.provider.CorrelationID(ctx),
		Routine:           h.provider.Routine(ctx),
		Info:              h.provider.ContextInfo(ctx),
		PendingHooks:      h.provider.PendingHooks(ctx),
		ActiveSubContexts: h.provider.ActiveSubContexts(ctx),
	})
}

// GetContext handles GET /api/v1/context
// Returns the correlation ID, routine and metadata of the request context.
//
// @Summary Get the request context
// @Tags context
// @Produce json
// @Success 200 {object} dto.ContextResponse
// @Router /api/v1/context [get]
func (h *ContextHandler) GetContext(c *gin.Context) {
	h.respond(c)
}

// PutContextInfo handles PUT /api/v1/context/info
// Replaces the request context's metadata with the JSON body and returns the
// resulting context.
//
// @Summary Set request context metadata
// @Tags context
// @Accept json
// @Produce json
// @Success 200 {object} dto.ContextResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/context/info [put]
func (h *ContextHandler) PutContextInfo(c *gin.Context) {
	var info map[string]any

	if err := c.ShouldBindJSON(&info); err != nil {
		dto.AbortWithErrorCode(c, dto.ErrorCodeBadRequest, "body must be a JSON object")
		return
	}

	h.provider.SetContextInfo(c.Request.Context(), info)
	h.respond(c)
}

// RegisterRoutes registers context routes on the given router group.
func (h *ContextHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/context", h.GetContext)
	rg.PUT("/context/info", h.PutContextInfo)
}
