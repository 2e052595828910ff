package checkout

import (
	"context"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"go.uber.org/zap"
)

// startTimerLocked liga a contagem regressiva enquanto o pagamento ainda é possível.
func (c *Controller) startTimerLocked() {
	if c.cfg.Manual || c.closed || c.timer != nil {
		return
	}
	switch c.sess.State {
	case domain.StateCollectingIdentity, domain.StateAwaitingPayment:
	default:
		return
	}
	c.timer = StartTask(c.ctx, Every(c.cfg.TickInterval), func(context.Context) {
		c.Tick()
	})
}

// Tick desconta um segundo da janela de pagamento. O valor nunca fica acima do
// prazo calculado a partir de invoice.ExpiresAt, que é a referência do servidor.
// Ao chegar a zero antes do pagamento a sessão vai para Expired, mesmo com
// chamadas de rede em andamento.
func (c *Controller) Tick() {
	c.mu.Lock()
	switch c.sess.State {
	case domain.StateCollectingIdentity, domain.StateAwaitingPayment:
	default:
		c.mu.Unlock()
		return
	}

	remaining := c.sess.RemainingSeconds - 1
	if exp := c.sess.Invoice.ExpiresAt; !exp.IsZero() {
		if byClock := ceilSeconds(exp.Sub(c.now())); byClock < remaining {
			remaining = byClock
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	c.sess.RemainingSeconds = remaining
	if remaining == 0 {
		c.sess.LastError = domain.ErrExpired
		c.advanceLocked(domain.StateExpired)
		c.log.Info("janela de pagamento expirou", zap.String("token", c.token))
	}
	c.commitLocked()
}
