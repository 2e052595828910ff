package domain

import "time"

// SessionState é o estado da máquina de estados do checkout.
type SessionState string

const (
	StateLoading            SessionState = "loading"
	StateCollectingIdentity SessionState = "collecting_identity"
	StateAwaitingPayment    SessionState = "awaiting_payment"
	StatePaid               SessionState = "paid"
	StateOfferingConversion SessionState = "offering_conversion"
	StateCompleted          SessionState = "completed"
	StateExpired            SessionState = "expired"
	StateError              SessionState = "error"
)

// rank ordena os estados não terminais. Uma resposta atrasada nunca pode
// levar a sessão para um rank menor do que o atual.
var stateRank = map[SessionState]int{
	StateLoading:            0,
	StateCollectingIdentity: 1,
	StateAwaitingPayment:    2,
	StatePaid:               3,
	StateOfferingConversion: 4,
	StateCompleted:          5,
}

// Rank devolve a posição do estado na ordem monotônica. Estados de falha
// (Expired, Error) ficam acima de qualquer outro.
func (s SessionState) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return len(stateRank)
}

// Terminal indica que nenhuma operação pode mais alterar a sessão.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateExpired, StateError:
		return true
	}
	return false
}

// CheckoutSession é a unidade mutada exclusivamente pelo controlador da sessão.
// Os dados do pagador vivem somente aqui e são descartados com a sessão.
type CheckoutSession struct {
	State             SessionState
	Invoice           Invoice
	Identity          PayerIdentity
	Address           *Address
	TermsAccepted     bool
	Instrument        *PaymentInstrument
	RemainingSeconds  int
	LastError         error
	Offer             *Benefits
	AccountEmail      string
	TransientFailures int
}

// SessionSnapshot é a visão somente leitura da sessão publicada para o cliente
// e para o cache. Não carrega dados de identidade nem endereço do pagador.
type SessionSnapshot struct {
	SessionID         string             `json:"session_id"`
	Version           uint64             `json:"version"`
	State             SessionState       `json:"state"`
	Invoice           Invoice            `json:"invoice"`
	Instrument        *PaymentInstrument `json:"instrument,omitempty"`
	RemainingSeconds  int                `json:"remaining_seconds"`
	Offer             *Benefits          `json:"offer,omitempty"`
	AccountEmail      string             `json:"account_email,omitempty"`
	LastError         string             `json:"last_error,omitempty"`
	TransientFailures int                `json:"transient_failures,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
