package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus é o status da fatura conforme devolvido pelo serviço de faturas.
type InvoiceStatus string

const (
	InvoicePending         InvoiceStatus = "pending"
	InvoiceAwaitingPayment InvoiceStatus = "awaiting_payment"
	InvoicePaid            InvoiceStatus = "paid"
	InvoiceApproved        InvoiceStatus = "approved"
	InvoiceCompleted       InvoiceStatus = "completed"
	InvoiceExpired         InvoiceStatus = "expired"
	InvoiceCancelled       InvoiceStatus = "cancelled"
	InvoiceRejected        InvoiceStatus = "rejected"
)

// Settled indica que o pagamento em reais já foi compensado.
func (s InvoiceStatus) Settled() bool {
	switch s {
	case InvoicePaid, InvoiceApproved, InvoiceCompleted:
		return true
	}
	return false
}

// Closed indica uma fatura encerrada sem pagamento por decisão do servidor.
func (s InvoiceStatus) Closed() bool {
	return s == InvoiceCancelled || s == InvoiceRejected
}

// Invoice representa a fatura em cripto emitida pelo beneficiário.
// Apenas Status e ExpiresAt mudam, e somente a partir de respostas do servidor.
type Invoice struct {
	ID                  string          `json:"id"`
	ShareToken          string          `json:"share_token"`
	Status              InvoiceStatus   `json:"status"`
	CryptoCurrency      string          `json:"crypto_currency"`
	CryptoAmount        decimal.Decimal `json:"crypto_amount"`
	FiatTotal           decimal.Decimal `json:"fiat_total"`
	BeneficiaryName     string          `json:"beneficiary_name"`
	BeneficiaryVerified bool            `json:"beneficiary_verified"`
	ExpiresAt           time.Time       `json:"expires_at"`
	TermsVersion        string          `json:"terms_version"`
}

// PaymentInstrument é a cobrança PIX (QR Code / copia e cola) entregue ao pagador.
type PaymentInstrument struct {
	QRPayload    string    `json:"qr_payload"`
	QRImage      string    `json:"qr_image,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Instructions []string  `json:"instructions"`
}

// ExpiredAt informa se o instrumento já não pode ser pago no instante now.
func (p PaymentInstrument) ExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Benefits é o conteúdo da oferta de conversão de conta exibida após o pagamento.
type Benefits struct {
	Headline    string   `json:"headline"`
	Subheadline string   `json:"subheadline"`
	Benefits    []string `json:"benefits"`
	CTAText     string   `json:"cta_text"`
	CTASubtitle string   `json:"cta_subtitle"`
}
