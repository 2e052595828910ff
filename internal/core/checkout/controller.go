package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/core/validation"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Config struct {
	TickInterval         time.Duration
	PollInterval         time.Duration
	MaxPollBackoff       time.Duration
	MaxTransientFailures int
	RequestTimeout       time.Duration
	ManualConfirmEvery   time.Duration
	// Manual desliga timer e poller em segundo plano; quem usa o controlador
	// chama Tick e PollOnce diretamente.
	Manual bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollBackoff < c.PollInterval {
		c.MaxPollBackoff = 12 * c.PollInterval
	}
	if c.MaxTransientFailures <= 0 {
		c.MaxTransientFailures = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.ManualConfirmEvery <= 0 {
		c.ManualConfirmEvery = 2 * time.Second
	}
	return c
}

type Dependencies struct {
	Invoices    ports.InvoiceService
	Instruments ports.InstrumentGenerator
	Eligibility ports.EligibilityResolver
	Accounts    ports.AccountProvisioner
	Validator   validation.Service
	Logger      *zap.Logger
	Now         func() time.Time
}

// Controller é o único dono de uma CheckoutSession. Chamadas de rede nunca são
// feitas com mu travado, para não atrasar o tick do timer.
type Controller struct {
	id   string
	cfg  Config
	deps Dependencies
	log  *zap.Logger
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	checks   singleflight.Group
	manual   *rate.Limiter
	onChange func(domain.SessionSnapshot)

	mu         sync.Mutex
	sess       domain.CheckoutSession
	token      string
	version    uint64
	loading    bool
	submitting bool
	upgrading  bool
	closed     bool
	timer      *Task
	poller     *Task

	// Estado da consulta de elegibilidade feita em Paid.
	resolving          bool
	conversionPending  bool
	conversionFailures int
	conversionRetry    *Task
}

// NewController cria a sessão no estado Loading. onChange recebe uma cópia da
// sessão a cada mudança e não deve bloquear.
func NewController(id string, cfg Config, deps Dependencies, onChange func(domain.SessionSnapshot)) *Controller {
	cfg = cfg.withDefaults()
	if deps.Validator == nil {
		deps.Validator = validation.NewService()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With(zap.String("session_id", id)),
		now:      deps.Now,
		ctx:      ctx,
		cancel:   cancel,
		manual:   rate.NewLimiter(rate.Every(cfg.ManualConfirmEvery), 1),
		onChange: onChange,
		sess:     domain.CheckoutSession{State: domain.StateLoading},
	}
}

func (c *Controller) ID() string { return c.id }

// State devolve o estado atual.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.State
}

// Snapshot devolve a visão somente leitura da sessão.
func (c *Controller) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LoadSession busca a fatura pelo token e decide o estado inicial.
func (c *Controller) LoadSession(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.sess.State != domain.StateLoading || c.loading || c.closed {
		err := c.transitionErrLocked("LoadSession")
		c.mu.Unlock()
		return err
	}
	c.loading = true
	c.mu.Unlock()

	c.log.Debug("carregando fatura", zap.String("token", token))
	snap, err := c.deps.Invoices.GetInvoice(ctx, token)

	c.mu.Lock()
	c.loading = false
	if c.closed {
		err := c.transitionErrLocked("LoadSession")
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.sess.LastError = err
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.advanceLocked(domain.StateError)
		case errors.Is(err, domain.ErrExpired):
			c.advanceLocked(domain.StateExpired)
		}
		c.commitLocked()
		return fmt.Errorf("carregar fatura: %w", err)
	}

	now := c.now()
	c.token = token
	c.sess.Invoice = snap.Invoice
	if c.sess.Invoice.ShareToken == "" {
		c.sess.Invoice.ShareToken = token
	}
	c.sess.RemainingSeconds = snap.ExpiresInSeconds
	if c.sess.Invoice.ExpiresAt.IsZero() {
		c.sess.Invoice.ExpiresAt = now.Add(time.Duration(snap.ExpiresInSeconds) * time.Second)
	}

	status := snap.Invoice.Status
	switch {
	case status.Settled():
		c.advanceLocked(domain.StatePaid)
	case status.Closed():
		c.sess.LastError = domain.ErrInvoiceClosed
		c.advanceLocked(domain.StateError)
	case status == domain.InvoiceExpired || snap.ExpiresInSeconds <= 0:
		c.sess.RemainingSeconds = 0
		c.sess.LastError = domain.ErrExpired
		c.advanceLocked(domain.StateExpired)
	case snap.Instrument != nil && !snap.Instrument.ExpiredAt(now):
		inst := *snap.Instrument
		c.sess.Instrument = &inst
		c.advanceLocked(domain.StateAwaitingPayment)
	default:
		c.advanceLocked(domain.StateCollectingIdentity)
	}
	c.startTimerLocked()
	paid := c.sess.State == domain.StatePaid
	c.commitLocked()

	if paid {
		_ = c.resolveConversion()
	}
	return nil
}

// SubmitPayerData valida os dados, envia ao serviço de faturas e gera a cobrança PIX.
// Com dados inválidos o gerador nunca é chamado e o estado não muda.
func (c *Controller) SubmitPayerData(ctx context.Context, identity domain.PayerIdentity, address domain.Address, termsAccepted bool) error {
	c.mu.Lock()
	if c.sess.State != domain.StateCollectingIdentity || c.closed {
		err := c.transitionErrLocked("SubmitPayerData")
		c.mu.Unlock()
		return err
	}
	if c.submitting || c.sess.Instrument != nil {
		c.mu.Unlock()
		return domain.ErrConflict
	}
	if fields := c.deps.Validator.ValidatePayer(identity, &address, termsAccepted); len(fields) > 0 {
		verr := &domain.ValidationError{Fields: fields}
		c.sess.LastError = verr
		c.commitLocked()
		return verr
	}
	c.sess.Identity = identity
	addr := address
	c.sess.Address = &addr
	c.sess.TermsAccepted = termsAccepted
	c.sess.LastError = nil
	c.submitting = true
	token := c.token
	submission := ports.PayerSubmission{
		Identity:      identity,
		Address:       address,
		TermsAccepted: termsAccepted,
		TermsVersion:  c.sess.Invoice.TermsVersion,
	}
	c.mu.Unlock()

	ack, err := c.deps.Invoices.SubmitPayer(ctx, token, submission)
	if errors.Is(err, domain.ErrConflict) {
		return c.recoverInstrument(ctx, token, "enviar dados do pagador", err)
	}
	if err != nil {
		return c.failSubmit("enviar dados do pagador", err)
	}

	c.mu.Lock()
	if c.closed {
		c.submitting = false
		err := c.transitionErrLocked("SubmitPayerData")
		c.mu.Unlock()
		return err
	}
	c.resyncLocked(ack.ExpiresInSeconds)
	if c.sess.State != domain.StateCollectingIdentity {
		c.submitting = false
		err := c.transitionErrLocked("SubmitPayerData")
		c.commitLocked()
		return err
	}
	c.mu.Unlock()

	res, err := c.deps.Instruments.GenerateInstrument(ctx, token)
	if errors.Is(err, domain.ErrConflict) {
		return c.recoverInstrument(ctx, token, "gerar cobrança PIX", err)
	}
	if err != nil {
		return c.failSubmit("gerar cobrança PIX", err)
	}

	c.mu.Lock()
	c.submitting = false
	if c.closed {
		err := c.transitionErrLocked("SubmitPayerData")
		c.mu.Unlock()
		return err
	}
	if c.sess.State != domain.StateCollectingIdentity {
		err := c.transitionErrLocked("SubmitPayerData")
		c.commitLocked()
		return err
	}
	inst := res.Instrument
	c.sess.Instrument = &inst
	c.resyncLocked(res.ExpiresInSeconds)
	c.advanceLocked(domain.StateAwaitingPayment)
	c.commitLocked()
	return nil
}

// recoverInstrument trata o 409 de um envio cuja resposta se perdeu. Se o
// servidor já tem uma cobrança viva para a fatura, a sessão passa a usá-la.
func (c *Controller) recoverInstrument(ctx context.Context, token, op string, cause error) error {
	snap, err := c.deps.Invoices.GetInvoice(ctx, token)
	if err != nil {
		c.log.Warn("falha ao recarregar fatura após conflito", zap.Error(err))
		return c.failSubmit(op, cause)
	}
	if snap.Instrument == nil || snap.Instrument.ExpiredAt(c.now()) || snap.Invoice.Status.Closed() || snap.Invoice.Status == domain.InvoiceExpired {
		return c.failSubmit(op, cause)
	}

	c.mu.Lock()
	c.submitting = false
	if c.closed {
		err := c.transitionErrLocked("SubmitPayerData")
		c.mu.Unlock()
		return err
	}
	if c.sess.State != domain.StateCollectingIdentity {
		err := c.transitionErrLocked("SubmitPayerData")
		c.commitLocked()
		return err
	}
	inst := *snap.Instrument
	c.sess.Instrument = &inst
	c.sess.LastError = nil
	expiresIn := snap.ExpiresInSeconds
	c.resyncLocked(&expiresIn)
	c.advanceLocked(domain.StateAwaitingPayment)
	c.commitLocked()
	c.log.Info("cobrança já emitida adotada após conflito", zap.String("op", op))
	return nil
}

func (c *Controller) failSubmit(op string, err error) error {
	c.mu.Lock()
	c.submitting = false
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	c.sess.LastError = err
	switch {
	case errors.Is(err, domain.ErrExpired):
		c.advanceLocked(domain.StateExpired)
	case errors.Is(err, domain.ErrNotFound):
		c.advanceLocked(domain.StateError)
	}
	c.commitLocked()
	c.log.Warn("falha no envio do pagador", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

// Close encerra a sessão: cancela timer, poller e chamadas pendentes e
// descarta os dados do pagador. É seguro chamar mais de uma vez.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	timer, poller, retry := c.timer, c.poller, c.conversionRetry
	c.timer, c.poller, c.conversionRetry = nil, nil, nil
	c.sess.Identity = nil
	c.sess.Address = nil
	c.mu.Unlock()

	c.cancel()
	timer.Stop()
	poller.Stop()
	retry.Stop()
	c.log.Debug("sessão encerrada")
}

// advanceLocked aplica a transição apenas se ela avança na ordem monotônica.
// Sair de AwaitingPayment cancela o poller; chegar a Paid ou a um estado
// terminal cancela também o timer.
func (c *Controller) advanceLocked(to domain.SessionState) bool {
	from := c.sess.State
	if from.Terminal() || to.Rank() <= from.Rank() {
		return false
	}
	c.sess.State = to
	c.log.Info("transição de estado", zap.String("from", string(from)), zap.String("to", string(to)))

	if to != domain.StateAwaitingPayment {
		c.poller.Cancel()
		c.poller = nil
	} else {
		c.startPollerLocked()
	}
	if to.Rank() >= domain.StatePaid.Rank() {
		c.timer.Cancel()
		c.timer = nil
	}
	if to != domain.StatePaid {
		c.conversionRetry.Cancel()
		c.conversionRetry = nil
	}
	if to.Terminal() {
		c.sess.Identity = nil
		c.sess.Address = nil
	}
	return true
}

func (c *Controller) transitionErrLocked(op string) error {
	return &domain.TransitionError{Op: op, State: c.sess.State}
}

// resyncLocked realinha o contador com o prazo devolvido pelo servidor.
func (c *Controller) resyncLocked(expiresIn *int) {
	if expiresIn == nil || c.sess.State.Terminal() {
		return
	}
	c.sess.RemainingSeconds = *expiresIn
	c.sess.Invoice.ExpiresAt = c.now().Add(time.Duration(*expiresIn) * time.Second)
}

func (c *Controller) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:         c.id,
		Version:           c.version,
		State:             c.sess.State,
		Invoice:           c.sess.Invoice,
		RemainingSeconds:  c.sess.RemainingSeconds,
		AccountEmail:      c.sess.AccountEmail,
		TransientFailures: c.sess.TransientFailures,
		UpdatedAt:         c.now(),
	}
	if c.sess.Instrument != nil {
		inst := *c.sess.Instrument
		snap.Instrument = &inst
	}
	if c.sess.Offer != nil {
		offer := *c.sess.Offer
		snap.Offer = &offer
	}
	if c.sess.LastError != nil {
		snap.LastError = c.sess.LastError.Error()
	}
	return snap
}

// commitLocked publica a nova versão e libera mu.
func (c *Controller) commitLocked() {
	c.version++
	snap := c.snapshotLocked()
	notify := c.onChange
	c.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
