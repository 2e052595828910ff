package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"go.uber.org/zap"
)

// startPollerLocked liga a verificação periódica de liquidação. Só é chamado
// na entrada de AwaitingPayment.
func (c *Controller) startPollerLocked() {
	if c.cfg.Manual || c.closed || c.poller != nil {
		return
	}
	c.poller = StartTask(c.ctx, c.nextPollDelay, func(ctx context.Context) {
		if err := c.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug("verificação de pagamento falhou", zap.Error(err))
		}
	})
}

// nextPollDelay dobra o intervalo a cada falha transitória seguida, até MaxPollBackoff.
func (c *Controller) nextPollDelay() time.Duration {
	c.mu.Lock()
	failures := c.sess.TransientFailures
	c.mu.Unlock()
	return backoff(c.cfg.PollInterval, c.cfg.MaxPollBackoff, failures)
}

func backoff(base, limit time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

// PollOnce consulta a liquidação uma vez. É o mesmo efeito usado pelo poller e
// pela confirmação manual. Depois do pagamento só refaz a consulta de
// elegibilidade que tenha falhado; fora isso é um no-op.
func (c *Controller) PollOnce(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		err := c.transitionErrLocked("PollOnce")
		c.mu.Unlock()
		return err
	}
	switch c.sess.State {
	case domain.StateAwaitingPayment:
	case domain.StatePaid:
		pending := c.conversionPending
		c.mu.Unlock()
		if pending {
			return c.resolveConversion()
		}
		return nil
	case domain.StateOfferingConversion, domain.StateCompleted:
		c.mu.Unlock()
		return nil
	default:
		err := c.transitionErrLocked("PollOnce")
		c.mu.Unlock()
		return err
	}
	token := c.token
	c.mu.Unlock()

	status, err := c.checkSettlement(ctx, token)
	if err != nil && ctx.Err() != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	if err != nil {
		return c.pollFailedLocked(err)
	}
	if c.sess.TransientFailures > 0 {
		c.sess.TransientFailures = 0
		if errors.Is(c.sess.LastError, domain.ErrTransientNetwork) {
			c.sess.LastError = nil
		}
	}
	c.resyncLocked(status.ExpiresInSeconds)
	settled := false
	if status.Paid && c.sess.State == domain.StateAwaitingPayment {
		settled = c.advanceLocked(domain.StatePaid)
	}
	c.commitLocked()

	if settled {
		c.log.Info("pagamento confirmado", zap.String("token", token))
		// Falha de elegibilidade fica na sessão; o pagamento já foi confirmado.
		_ = c.resolveConversion()
	}
	return nil
}

// ConfirmPaymentManually é o botão "já paguei". Cliques acima do limite viram
// no-op em vez de gerar novas consultas.
func (c *Controller) ConfirmPaymentManually(ctx context.Context) error {
	if !c.manual.Allow() {
		c.mu.Lock()
		defer c.mu.Unlock()
		switch c.sess.State {
		case domain.StateAwaitingPayment, domain.StatePaid, domain.StateOfferingConversion, domain.StateCompleted:
			return nil
		}
		return c.transitionErrLocked("ConfirmPaymentManually")
	}
	return c.PollOnce(ctx)
}

// checkSettlement agrupa consultas simultâneas numa única chamada. A chamada
// compartilhada usa o contexto da sessão; ctx só limita a espera do chamador.
func (c *Controller) checkSettlement(ctx context.Context, token string) (ports.SettlementStatus, error) {
	ch := c.checks.DoChan(token, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
		defer cancel()
		return c.deps.Invoices.CheckSettlement(reqCtx, token)
	})
	select {
	case <-ctx.Done():
		return ports.SettlementStatus{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ports.SettlementStatus{}, res.Err
		}
		return res.Val.(ports.SettlementStatus), nil
	}
}

// pollFailedLocked trata o erro de uma consulta e libera mu. Falhas
// transitórias não mudam o estado; só aparecem ao usuário depois de
// MaxTransientFailures tentativas seguidas.
func (c *Controller) pollFailedLocked(err error) error {
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return err
	}
	switch {
	case errors.Is(err, domain.ErrExpired):
		c.sess.LastError = domain.ErrExpired
		c.advanceLocked(domain.StateExpired)
		c.commitLocked()
		return err
	case errors.Is(err, domain.ErrNotFound):
		c.sess.LastError = err
		c.advanceLocked(domain.StateError)
		c.commitLocked()
		return err
	}

	if c.sess.State != domain.StateAwaitingPayment {
		c.mu.Unlock()
		return err
	}
	c.sess.TransientFailures++
	failures := c.sess.TransientFailures
	if failures >= c.cfg.MaxTransientFailures {
		c.sess.LastError = fmt.Errorf("%w: %d tentativas seguidas", domain.ErrTransientNetwork, failures)
	}
	c.commitLocked()
	c.log.Warn("falha transitória ao consultar pagamento", zap.Int("failures", failures), zap.Error(err))
	if errors.Is(err, domain.ErrTransientNetwork) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
}
