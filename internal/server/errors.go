package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindUnauthorized, apperrors.KindInsufficientPermission:
		return http.StatusForbidden
	case apperrors.KindInvalidState, apperrors.KindAlreadyExists, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindInvalidConfirmationCode:
		return http.StatusUnprocessableEntity
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)
	payload := errorPayload{Error: string(kind), Code: apperrors.CodeOf(err)}
	if status == http.StatusInternalServerError {
		payload.Error = string(apperrors.KindInternal)
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", payload.Code),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, payload)
}

func respondInvalidRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
}
