package checkout

import (
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	EventSessionPaid    = "checkout.session_paid"
	EventSessionExpired = "checkout.session_expired"
	EventSessionFailed  = "checkout.session_failed"
	EventAccountCreated = "checkout.account_created"
)

// SessionEvent é o payload publicado para cada marco da sessão. Nunca carrega
// dados de identidade ou endereço do pagador.
type SessionEvent struct {
	Type         string              `json:"type"`
	SessionID    string              `json:"session_id"`
	InvoiceID    string              `json:"invoice_id"`
	ShareToken   string              `json:"share_token"`
	State        domain.SessionState `json:"state"`
	FiatTotal    decimal.Decimal     `json:"fiat_total"`
	AccountEmail string              `json:"account_email,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

func paidFamily(s domain.SessionState) bool {
	switch s {
	case domain.StatePaid, domain.StateOfferingConversion, domain.StateCompleted:
		return true
	}
	return false
}

// eventsFor traduz a passagem de prev para o estado do snapshot em eventos.
// Estados intermediários podem ter sido pulados; uma sessão que sai de
// AwaitingPayment direto para Completed gera pagamento e conta criada.
// Sessões que já abrem pagas, expiradas ou inválidas não geram eventos.
func eventsFor(prev domain.SessionState, snap domain.SessionSnapshot) []SessionEvent {
	if prev == snap.State || prev == domain.StateLoading {
		return nil
	}
	base := SessionEvent{
		SessionID:  snap.SessionID,
		InvoiceID:  snap.Invoice.ID,
		ShareToken: snap.Invoice.ShareToken,
		State:      snap.State,
		FiatTotal:  snap.Invoice.FiatTotal,
		OccurredAt: snap.UpdatedAt,
	}
	var out []SessionEvent
	add := func(typ string) {
		ev := base
		ev.Type = typ
		out = append(out, ev)
	}
	switch {
	case paidFamily(snap.State):
		if !paidFamily(prev) {
			add(EventSessionPaid)
		}
		if snap.State == domain.StateCompleted {
			add(EventAccountCreated)
			out[len(out)-1].AccountEmail = snap.AccountEmail
		}
	case snap.State == domain.StateExpired:
		add(EventSessionExpired)
	case snap.State == domain.StateError:
		add(EventSessionFailed)
		out[0].LastError = snap.LastError
	}
	return out
}
