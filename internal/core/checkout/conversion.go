package checkout

import (
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"go.uber.org/zap"
)

const minPasswordLen = 8

// resolveConversion consulta a elegibilidade depois do pagamento. Sem
// elegibilidade a sessão fica em Paid e os benefícios nem são buscados. Uma
// falha fica registrada na sessão e a consulta é refeita com backoff pela
// tarefa de segundo plano ou pelo próximo PollOnce.
func (c *Controller) resolveConversion() error {
	if c.deps.Eligibility == nil {
		return nil
	}
	c.mu.Lock()
	if c.sess.State != domain.StatePaid || c.resolving || c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.sess.Identity == nil && requiresIdentity(c.deps.Accounts) {
		c.conversionPending = false
		c.mu.Unlock()
		c.log.Info("oferta de conversão omitida: identidade do pagador indisponível")
		return nil
	}
	c.resolving = true
	token := c.token
	c.mu.Unlock()

	offer, err := c.fetchOffer(token)

	c.mu.Lock()
	c.resolving = false
	if c.sess.State != domain.StatePaid || c.closed {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.conversionPending = true
		c.conversionFailures++
		failures := c.conversionFailures
		c.sess.LastError = err
		c.startConversionRetryLocked()
		c.commitLocked()
		c.log.Warn("falha ao resolver conversão", zap.Int("failures", failures), zap.Error(err))
		return err
	}

	hadErr := c.conversionPending
	c.conversionPending = false
	c.conversionFailures = 0
	c.conversionRetry.Cancel()
	c.conversionRetry = nil
	if hadErr {
		c.sess.LastError = nil
	}
	if offer == nil {
		c.log.Debug("pagador não elegível para conversão")
		if hadErr {
			c.commitLocked()
		} else {
			c.mu.Unlock()
		}
		return nil
	}
	c.sess.Offer = offer
	c.advanceLocked(domain.StateOfferingConversion)
	c.commitLocked()
	return nil
}

// fetchOffer devolve nil sem erro quando o pagador não é elegível.
func (c *Controller) fetchOffer(token string) (*domain.Benefits, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	defer cancel()

	ok, err := c.deps.Eligibility.CanConvert(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consultar elegibilidade: %w", err)
	}
	if !ok {
		return nil, nil
	}
	benefits, err := c.deps.Eligibility.Benefits(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("buscar benefícios: %w", err)
	}
	return &benefits, nil
}

func (c *Controller) startConversionRetryLocked() {
	if c.cfg.Manual || c.closed || c.conversionRetry != nil {
		return
	}
	c.conversionRetry = StartTask(c.ctx, c.nextConversionDelay, func(ctx context.Context) {
		_ = c.resolveConversion()
	})
}

func (c *Controller) nextConversionDelay() time.Duration {
	c.mu.Lock()
	failures := c.conversionFailures
	c.mu.Unlock()
	return backoff(c.cfg.PollInterval, c.cfg.MaxPollBackoff, failures-1)
}

func requiresIdentity(accounts ports.AccountProvisioner) bool {
	r, ok := accounts.(ports.IdentityRequirer)
	return ok && r.RequiresIdentity()
}

// StartAccountUpgrade cria a conta do pagador. Senhas divergentes, consentimento
// ausente ou senha fraca são rejeitados sem chamada de rede; em qualquer falha
// a sessão continua em OfferingConversion e pode tentar de novo.
func (c *Controller) StartAccountUpgrade(ctx context.Context, password, confirmPassword string, acceptTerms, acceptPrivacy bool) (ports.Account, error) {
	c.mu.Lock()
	if c.sess.State != domain.StateOfferingConversion || c.closed {
		err := c.transitionErrLocked("StartAccountUpgrade")
		c.mu.Unlock()
		return ports.Account{}, err
	}
	if c.upgrading {
		c.mu.Unlock()
		return ports.Account{}, domain.ErrConflict
	}
	if err := checkUpgradeInput(password, confirmPassword, acceptTerms, acceptPrivacy); err != nil {
		c.sess.LastError = err
		c.commitLocked()
		return ports.Account{}, err
	}
	c.upgrading = true
	token := c.token
	req := ports.UpgradeRequest{
		Password:        password,
		ConfirmPassword: confirmPassword,
		AcceptTerms:     acceptTerms,
		AcceptPrivacy:   acceptPrivacy,
		Identity:        c.sess.Identity,
	}
	c.mu.Unlock()

	account, err := c.deps.Accounts.CreateAccount(ctx, token, req)

	c.mu.Lock()
	c.upgrading = false
	if c.closed {
		c.mu.Unlock()
		return account, err
	}
	if err != nil {
		c.sess.LastError = err
		c.commitLocked()
		c.log.Warn("falha ao criar conta", zap.Error(err))
		return ports.Account{}, err
	}
	c.sess.AccountEmail = account.Email
	c.sess.LastError = nil
	c.advanceLocked(domain.StateCompleted)
	c.commitLocked()
	c.log.Info("conta criada a partir do checkout")
	return account, nil
}

func checkUpgradeInput(password, confirmPassword string, acceptTerms, acceptPrivacy bool) error {
	if password != confirmPassword {
		return &domain.UpgradeError{Reason: domain.ErrPasswordMismatch}
	}
	if !acceptTerms || !acceptPrivacy {
		return &domain.UpgradeError{Reason: domain.ErrConsentRequired}
	}
	return CheckPasswordStrength(password)
}

// CheckPasswordStrength exige ao menos 8 caracteres com letras e números.
func CheckPasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return &domain.UpgradeError{Reason: domain.ErrWeakPassword, Detail: "mínimo de 8 caracteres"}
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return &domain.UpgradeError{Reason: domain.ErrWeakPassword, Detail: "use letras e números"}
	}
	return nil
}
