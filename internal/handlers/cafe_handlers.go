package handlers

import (
	"net/http"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/services"
	"gamecafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CafeHandler holds the catalog service.
type CafeHandler struct {
	catalogService services.CatalogService
}

// NewCafeHandler creates a new CafeHandler.
func NewCafeHandler(cs services.CatalogService) *CafeHandler {
	return &CafeHandler{catalogService: cs}
}

// CreateCafe registers a cafe with its rooms and terminals for the calling owner.
func (h *CafeHandler) CreateCafe(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	var req services.CreateCafeRequest
	if !bindJSON(c, &req, "CreateCafe") {
		return
	}

	cafe, err := h.catalogService.CreateCafe(c.Request.Context(), userID, req)
	if err != nil {
		respondServiceError(c, err, "CreateCafe")
		return
	}
	c.JSON(http.StatusCreated, cafe)
}

// GetCafe returns the cafe with its rooms and live terminal states.
func (h *CafeHandler) GetCafe(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	cafe, err := h.catalogService.GetCafe(c.Request.Context(), scope)
	if err != nil {
		respondServiceError(c, err, "GetCafe")
		return
	}
	c.JSON(http.StatusOK, cafe)
}

type terminalStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetTerminalStatus toggles maintenance on a terminal.
func (h *CafeHandler) SetTerminalStatus(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req terminalStatusRequest
	if !bindJSON(c, &req, "SetTerminalStatus") {
		return
	}
	if !models.IsValidTerminalStatus(req.Status) {
		utils.RespondValidationFailed(c, "status: "+req.Status)
		return
	}

	cafe, err := h.catalogService.SetTerminalStatus(c.Request.Context(), scope, c.Param("roomName"), c.Param("terminalId"), models.TerminalStatus(req.Status))
	if err != nil {
		respondServiceError(c, err, "SetTerminalStatus")
		return
	}
	c.JSON(http.StatusOK, cafe)
}
