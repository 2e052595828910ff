// internal/api/handlers/checkout_handler.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/api/middleware"
	"github.com/LuisEduardoPedra/checkoutPix/internal/api/responses"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/checkout"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionRegistry é o subconjunto do checkout.Registry usado pelos handlers.
type SessionRegistry interface {
	Open(ctx context.Context, token string) (*checkout.Controller, error)
	Get(id string) (*checkout.Controller, error)
	Snapshot(ctx context.Context, id string) (domain.SessionSnapshot, error)
	Close(ctx context.Context, id string) error
	Len() int
}

// CheckoutHandler expõe as sessões de checkout para o cliente web.
type CheckoutHandler struct {
	sessions SessionRegistry
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewCheckoutHandler(sessions SessionRegistry, jwtSecret []byte, tokenTTL time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		secret:   jwtSecret,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

type openSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type sessionResponse struct {
	SessionID   string                 `json:"session_id"`
	AccessToken string                 `json:"access_token,omitempty"`
	Session     domain.SessionSnapshot `json:"session"`
}

type payerRequest struct {
	PersonType    domain.PersonType    `json:"person_type" binding:"required,oneof=PF PJ"`
	PFData        *domain.Individual   `json:"pf_data"`
	PJData        *domain.Organization `json:"pj_data"`
	Address       domain.Address       `json:"address"`
	TermsAccepted bool                 `json:"terms_accepted"`
}

func (r payerRequest) identity() domain.PayerIdentity {
	switch r.PersonType {
	case domain.PersonIndividual:
		if r.PFData != nil {
			return *r.PFData
		}
	case domain.PersonOrganization:
		if r.PJData != nil {
			return *r.PJData
		}
	}
	return nil
}

type upgradeRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AcceptTerms     bool   `json:"accept_terms"`
	AcceptPrivacy   bool   `json:"accept_privacy"`
}

// Open cria a sessão a partir do token compartilhável da fatura.
func (h *CheckoutHandler) Open(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Error(c, http.StatusBadRequest, "Token da fatura não informado", err.Error())
		return
	}
	ctrl, err := h.sessions.Open(c.Request.Context(), req.Token)
	if ctrl == nil {
		responses.FromError(c, err)
		return
	}
	access, err := middleware.IssueSessionToken(h.secret, ctrl.ID(), h.tokenTTL, h.now())
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao gerar token de acesso")
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID:   ctrl.ID(),
		AccessToken: access,
		Session:     ctrl.Snapshot(),
	})
}

func (h *CheckoutHandler) Get(c *gin.Context) {
	snap, err := h.sessions.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: snap.SessionID, Session: snap})
}

func (h *CheckoutHandler) SubmitPayer(c *gin.Context) {
	var req payerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Error(c, http.StatusBadRequest, "Corpo da requisição inválido", err.Error())
		return
	}
	h.withController(c, func(ctrl *checkout.Controller) error {
		return ctrl.SubmitPayerData(c.Request.Context(), req.identity(), req.Address, req.TermsAccepted)
	})
}

// ConfirmPayment é o botão "já paguei".
func (h *CheckoutHandler) ConfirmPayment(c *gin.Context) {
	h.withController(c, func(ctrl *checkout.Controller) error {
		return ctrl.ConfirmPaymentManually(c.Request.Context())
	})
}

func (h *CheckoutHandler) Upgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Error(c, http.StatusBadRequest, "Corpo da requisição inválido", err.Error())
		return
	}
	h.withController(c, func(ctrl *checkout.Controller) error {
		_, err := ctrl.StartAccountUpgrade(c.Request.Context(), req.Password, req.ConfirmPassword, req.AcceptTerms, req.AcceptPrivacy)
		return err
	})
}

func (h *CheckoutHandler) Close(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		responses.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats é usado pela operação para acompanhar a carga da réplica.
func (h *CheckoutHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_sessions": h.sessions.Len()})
}

// withController executa op na sessão local e responde com o snapshot atualizado.
func (h *CheckoutHandler) withController(c *gin.Context, op func(*checkout.Controller) error) {
	ctrl, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	if err := op(ctrl); err != nil {
		zap.L().Debug("operação rejeitada", zap.String("session_id", ctrl.ID()), zap.Error(err))
		responses.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: ctrl.ID(), Session: ctrl.Snapshot()})
}
