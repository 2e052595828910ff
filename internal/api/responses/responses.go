// internal/api/responses/responses.go
package responses

import (
	"context"
	"errors"
	"net/http"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body é o formato padrão das respostas de erro.
type Body struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details []string          `json:"details,omitempty"`
}

// Error responde com a mensagem e, opcionalmente, detalhes adicionais.
func Error(c *gin.Context, status int, msg string, details ...string) {
	c.AbortWithStatusJSON(status, Body{Error: msg, Details: details})
}

// FromError traduz um erro do domínio para o status HTTP e responde.
func FromError(c *gin.Context, err error) {
	status, body := Map(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("erro interno", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

// Map concentra o mapeamento erro → status usado pelo BFF.
func Map(err error) (int, Body) {
	var verr *domain.ValidationError
	var uerr *domain.UpgradeError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, Body{Error: "dados inválidos", Code: "validation", Fields: verr.Fields}
	case errors.As(err, &uerr):
		status := http.StatusUnprocessableEntity
		if errors.Is(uerr, domain.ErrAccountExists) {
			status = http.StatusConflict
		}
		return status, Body{Error: uerr.Error(), Code: upgradeCode(uerr)}
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, Body{Error: domain.ErrSessionNotFound.Error(), Code: "session_not_found"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, Body{Error: domain.ErrNotFound.Error(), Code: "not_found"}
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, Body{Error: domain.ErrExpired.Error(), Code: "expired"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, Body{Error: err.Error(), Code: "invalid_transition"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, Body{Error: domain.ErrConflict.Error(), Code: "conflict"}
	case errors.Is(err, domain.ErrTransientNetwork),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, Body{Error: domain.ErrTransientNetwork.Error(), Code: "unavailable"}
	}
	return http.StatusInternalServerError, Body{Error: "erro interno"}
}

func upgradeCode(err *domain.UpgradeError) string {
	switch {
	case errors.Is(err, domain.ErrPasswordMismatch):
		return "password_mismatch"
	case errors.Is(err, domain.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, domain.ErrAccountExists):
		return "account_exists"
	case errors.Is(err, domain.ErrConsentRequired):
		return "consent_required"
	case errors.Is(err, domain.ErrIdentityMissing):
		return "identity_unavailable"
	}
	return "upgrade"
}
