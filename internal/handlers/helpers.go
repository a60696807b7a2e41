package handlers

import (
	"errors"
	"net/http"

	"gamecafe_backend/internal/middleware"
	"gamecafe_backend/internal/services"
	"gamecafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// scopeFromContext builds the service scope from the :cafeId param and the authenticated principal.
func scopeFromContext(c *gin.Context) (services.Scope, bool) {
	cafeID, err := utils.StrToInt64(c.Param("cafeId"))
	if err != nil || cafeID <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid cafe ID format.", ""))
		return services.Scope{}, false
	}
	userID, ok := userIDFromContext(c)
	if !ok {
		return services.Scope{}, false
	}
	return services.Scope{CafeID: cafeID, UserID: userID, Role: c.GetString(middleware.ContextUserRole)}, true
}

func userIDFromContext(c *gin.Context) (int64, bool) {
	userID := c.GetInt64(middleware.ContextUserID)
	if userID <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated.", ""))
		return 0, false
	}
	return userID, true
}

// parseBookingID reads the :id param.
func parseBookingID(c *gin.Context) (int64, bool) {
	id, err := utils.StrToInt64(c.Param("id"))
	if err != nil || id <= 0 {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid booking ID format.", ""))
		return 0, false
	}
	return id, true
}

// respondServiceError maps service errors onto API errors. Messages never echo internal ids.
func respondServiceError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Input validation failed.", err.Error()))
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found.", ""))
	case errors.Is(err, services.ErrConflict):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, services.ErrConflict.Error(), ""))
	case errors.Is(err, services.ErrWindowClosed):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeWindowClosed, "Cancellation window has closed.", err.Error()))
	case errors.Is(err, services.ErrOTPConsumed):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeOTPConsumed, "OTP has already been used.", ""))
	case errors.Is(err, services.ErrOTPInvalid):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeOTPInvalid, "OTP is invalid.", ""))
	case errors.Is(err, services.ErrWrongState):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeWrongState, "Operation not allowed in the current state.", err.Error()))
	default:
		utils.LogError(err, op+": unexpected error", map[string]interface{}{"request_id": c.GetString(utils.RequestIDKey)})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal server error.", ""))
	}
}

// bindJSON binds the body or answers 400.
func bindJSON(c *gin.Context, dst interface{}, op string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.LogDebug(op+": failed to bind JSON", map[string]interface{}{"error": err.Error()})
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}
