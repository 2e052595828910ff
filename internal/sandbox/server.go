package sandbox

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/checkoutapi"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/checkout"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/validation"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Config struct {
	PixKey       string
	MerchantCity string
	// StatusFailures faz as N primeiras consultas de status de cada fatura
	// responderem 503, para exercitar o backoff do poller.
	StatusFailures int
}

// Server implementa a API externa de checkout em memória.
type Server struct {
	cfg       Config
	store     *Store
	validator validation.Service
	log       *zap.Logger
	failures  map[string]int
}

func NewServer(cfg Config, store *Store, logger *zap.Logger) *Server {
	if cfg.PixKey == "" {
		cfg.PixKey = "sandbox@checkout.dev"
	}
	if cfg.MerchantCity == "" {
		cfg.MerchantCity = "Sao Paulo"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		validator: validation.NewService(),
		log:       logger,
		failures:  make(map[string]int),
	}
}

// Router registra as rotas da API de checkout e as rotas do operador.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	co := r.Group("/checkout/:token")
	{
		co.GET("", s.getInvoice)
		co.POST("/payer", s.submitPayer)
		co.POST("/instrument", s.generateInstrument)
		co.GET("/status", s.status)
		co.GET("/conversion-eligibility", s.eligibility)
		co.GET("/benefits", s.benefits)
		co.POST("/account", s.createAccount)
	}

	ops := r.Group("/sandbox/invoices")
	{
		ops.POST("", s.createInvoice)
		ops.POST("/:token/pay", s.markPaid)
		ops.POST("/:token/cancel", s.cancel)
	}
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
	return r
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, checkoutapi.ErrorResponse{Error: msg, Code: code})
}

func failErr(c *gin.Context, err error) {
	var verr *domain.ValidationError
	var uerr *domain.UpgradeError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, checkoutapi.ErrorResponse{
			Error: "dados inválidos", Code: checkoutapi.CodeValidation, Fields: verr.Fields,
		})
	case errors.As(err, &uerr):
		switch {
		case errors.Is(err, domain.ErrAccountExists):
			fail(c, http.StatusConflict, checkoutapi.CodeAccountExists, err.Error())
		case errors.Is(err, domain.ErrPasswordMismatch):
			fail(c, http.StatusUnprocessableEntity, checkoutapi.CodePasswordMismatch, err.Error())
		case errors.Is(err, domain.ErrConsentRequired):
			fail(c, http.StatusUnprocessableEntity, checkoutapi.CodeConsentRequired, err.Error())
		case errors.Is(err, domain.ErrIdentityMissing):
			fail(c, http.StatusUnprocessableEntity, checkoutapi.CodeIdentityMissing, err.Error())
		default:
			fail(c, http.StatusUnprocessableEntity, checkoutapi.CodeWeakPassword, err.Error())
		}
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, "", err.Error())
	case errors.Is(err, domain.ErrExpired):
		fail(c, http.StatusGone, "", err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		fail(c, http.StatusConflict, checkoutapi.CodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, "", err.Error())
	}
}

// withRecord trava o store e entrega a fatura ainda aberta do token.
func (s *Server) withRecord(c *gin.Context, requireOpen bool, fn func(rec *record) error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	rec, ok := s.store.get(c.Param("token"))
	if !ok {
		failErr(c, domain.ErrNotFound)
		return
	}
	if requireOpen {
		switch {
		case rec.invoice.Status == domain.InvoiceExpired:
			failErr(c, domain.ErrExpired)
			return
		case rec.invoice.Status.Closed():
			failErr(c, domain.ErrNotFound)
			return
		}
	}
	if err := fn(rec); err != nil {
		failErr(c, err)
	}
}

func (s *Server) getInvoice(c *gin.Context) {
	s.withRecord(c, false, func(rec *record) error {
		resp := checkoutapi.InvoiceResponse{Invoice: rec.invoice, ExpiresInSeconds: s.store.expiresIn(rec)}
		if rec.instrument != nil {
			resp.Instrument = &checkoutapi.InstrumentPayload{
				QRPayload:    rec.instrument.QRPayload,
				ExpiresAt:    rec.instrument.ExpiresAt,
				Instructions: rec.instrument.Instructions,
			}
		}
		c.JSON(http.StatusOK, resp)
		return nil
	})
}

func (s *Server) submitPayer(c *gin.Context) {
	var req checkoutapi.PayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, checkoutapi.CodeValidation, err.Error())
		return
	}
	s.withRecord(c, true, func(rec *record) error {
		if rec.instrument != nil || rec.invoice.Status.Settled() {
			return domain.ErrConflict
		}
		identity, err := req.Identity()
		if err != nil {
			return &domain.ValidationError{Fields: map[string]string{"person_type": err.Error()}}
		}
		if fields := s.validator.ValidatePayer(identity, &req.Address, req.TermsAccepted); len(fields) > 0 {
			return &domain.ValidationError{Fields: fields}
		}
		if req.TermsVersion != rec.invoice.TermsVersion {
			return &domain.ValidationError{Fields: map[string]string{"terms_version": "versão dos termos desatualizada"}}
		}
		rec.payer = identity
		rec.address = req.Address
		exp := s.store.expiresIn(rec)
		c.JSON(http.StatusOK, checkoutapi.PayerAck{ExpiresInSeconds: &exp})
		return nil
	})
}

func (s *Server) generateInstrument(c *gin.Context) {
	s.withRecord(c, true, func(rec *record) error {
		if rec.payer == nil {
			return &domain.ValidationError{Fields: map[string]string{"payer": "dados do pagador ainda não enviados"}}
		}
		if rec.instrument != nil && !rec.instrument.ExpiredAt(s.store.now()) {
			return domain.ErrConflict
		}
		payload, err := BRCode{
			Key:          s.cfg.PixKey,
			MerchantName: rec.invoice.BeneficiaryName,
			MerchantCity: s.cfg.MerchantCity,
			Amount:       rec.invoice.FiatTotal,
			TxID:         rec.invoice.ID,
		}.Encode()
		if err != nil {
			return err
		}
		inst := domain.PaymentInstrument{
			QRPayload: payload,
			ExpiresAt: rec.invoice.ExpiresAt,
			Instructions: []string{
				"Abra o app do seu banco e escolha PIX copia e cola",
				"Cole o código e confira o valor de R$ " + strings.Replace(rec.invoice.FiatTotal.StringFixed(2), ".", ",", 1),
				"Confirme o pagamento antes do fim do prazo",
			},
		}
		rec.instrument = &inst
		rec.invoice.Status = domain.InvoiceAwaitingPayment
		exp := s.store.expiresIn(rec)
		s.log.Info("cobrança PIX emitida", zap.String("token", rec.invoice.ShareToken))
		c.JSON(http.StatusOK, checkoutapi.InstrumentPayload{
			QRPayload:        inst.QRPayload,
			ExpiresAt:        inst.ExpiresAt,
			Instructions:     inst.Instructions,
			ExpiresInSeconds: &exp,
		})
		return nil
	})
}

func (s *Server) status(c *gin.Context) {
	token := c.Param("token")
	s.store.mu.Lock()
	if s.failures[token] < s.cfg.StatusFailures {
		s.failures[token]++
		s.store.mu.Unlock()
		fail(c, http.StatusServiceUnavailable, "", "instabilidade simulada")
		return
	}
	s.store.mu.Unlock()

	s.withRecord(c, false, func(rec *record) error {
		if rec.invoice.Status == domain.InvoiceExpired {
			return domain.ErrExpired
		}
		exp := s.store.expiresIn(rec)
		c.JSON(http.StatusOK, checkoutapi.StatusResponse{Paid: rec.invoice.Status.Settled(), ExpiresInSeconds: &exp})
		return nil
	})
}

func (s *Server) eligibility(c *gin.Context) {
	s.withRecord(c, false, func(rec *record) error {
		ok := rec.convertible && rec.invoice.Status.Settled() && rec.payer != nil &&
			!s.store.accounts[strings.ToLower(rec.payer.ContactEmail())]
		c.JSON(http.StatusOK, checkoutapi.EligibilityResponse{CanConvert: ok})
		return nil
	})
}

func (s *Server) benefits(c *gin.Context) {
	s.withRecord(c, false, func(rec *record) error {
		name := "você"
		if rec.payer != nil {
			if parts := strings.Fields(rec.payer.DisplayName()); len(parts) > 0 {
				name = parts[0]
			}
		}
		c.JSON(http.StatusOK, domain.Benefits{
			Headline:    "Pagamento confirmado, " + name + "!",
			Subheadline: "Crie sua conta e receba em cripto sem taxas",
			Benefits:    []string{"PIX para cripto em segundos", "Carteira custodiada", "Sem mensalidade"},
			CTAText:     "Criar minha conta",
			CTASubtitle: "Leva menos de um minuto",
		})
		return nil
	})
}

func (s *Server) createAccount(c *gin.Context) {
	var req checkoutapi.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, checkoutapi.CodeValidation, err.Error())
		return
	}
	s.withRecord(c, false, func(rec *record) error {
		if !rec.invoice.Status.Settled() || rec.payer == nil || !rec.convertible {
			return domain.ErrInvalidTransition
		}
		switch {
		case req.Password != req.ConfirmPassword:
			return &domain.UpgradeError{Reason: domain.ErrPasswordMismatch}
		case !req.AcceptTerms || !req.AcceptPrivacy:
			return &domain.UpgradeError{Reason: domain.ErrConsentRequired}
		}
		if err := checkout.CheckPasswordStrength(req.Password); err != nil {
			return err
		}
		email := strings.ToLower(rec.payer.ContactEmail())
		if s.store.accounts[email] {
			return &domain.UpgradeError{Reason: domain.ErrAccountExists}
		}
		s.store.accounts[email] = true
		rec.invoice.Status = domain.InvoiceCompleted
		c.JSON(http.StatusCreated, checkoutapi.AccountResponse{Email: email})
		return nil
	})
}

type createInvoiceRequest struct {
	InvoiceSeed
	ExpiresInSeconds int `json:"expires_in_seconds"`
}

func (s *Server) createInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, checkoutapi.CodeValidation, err.Error())
		return
	}
	seed := req.InvoiceSeed
	seed.ExpiresIn = time.Duration(req.ExpiresInSeconds) * time.Second
	inv, err := s.store.Create(seed)
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, checkoutapi.CodeValidation, err.Error())
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) markPaid(c *gin.Context) {
	if err := s.store.MarkPaid(c.Param("token")); err != nil {
		failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) cancel(c *gin.Context) {
	if err := s.store.Cancel(c.Param("token")); err != nil {
		failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
