package checkoutapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
)

// Formato JSON da API externa de checkout. O sandbox usa os mesmos tipos.

// InvoiceResponse é a resposta de GET /checkout/{token}.
type InvoiceResponse struct {
	domain.Invoice
	ExpiresInSeconds int                `json:"expires_in_seconds"`
	Instrument       *InstrumentPayload `json:"instrument,omitempty"`
}

// PayerRequest é o corpo de POST /checkout/{token}/payer. Exatamente um entre
// PFData e PJData vem preenchido, conforme PersonType.
type PayerRequest struct {
	PersonType    domain.PersonType    `json:"person_type"`
	PFData        *domain.Individual   `json:"pf_data,omitempty"`
	PJData        *domain.Organization `json:"pj_data,omitempty"`
	Address       domain.Address       `json:"address"`
	TermsAccepted bool                 `json:"terms_accepted"`
	TermsVersion  string               `json:"terms_version"`
}

// NewPayerRequest monta o corpo a partir da união PF/PJ.
func NewPayerRequest(identity domain.PayerIdentity, address domain.Address, termsAccepted bool, termsVersion string) (PayerRequest, error) {
	req := PayerRequest{Address: address, TermsAccepted: termsAccepted, TermsVersion: termsVersion}
	switch id := identity.(type) {
	case domain.Individual:
		req.PersonType = domain.PersonIndividual
		req.PFData = &id
	case domain.Organization:
		req.PersonType = domain.PersonOrganization
		req.PJData = &id
	default:
		return PayerRequest{}, fmt.Errorf("tipo de pagador não suportado: %T", identity)
	}
	return req, nil
}

// Identity devolve a variante indicada por PersonType.
func (r PayerRequest) Identity() (domain.PayerIdentity, error) {
	switch r.PersonType {
	case domain.PersonIndividual:
		if r.PFData == nil {
			return nil, fmt.Errorf("pf_data ausente")
		}
		return *r.PFData, nil
	case domain.PersonOrganization:
		if r.PJData == nil {
			return nil, fmt.Errorf("pj_data ausente")
		}
		return *r.PJData, nil
	}
	return nil, fmt.Errorf("person_type inválido: %q", r.PersonType)
}

type PayerAck struct {
	ExpiresInSeconds *int `json:"expires_in_seconds,omitempty"`
}

type InstrumentPayload struct {
	QRPayload        string    `json:"qr_payload"`
	QRImage          string    `json:"qr_image,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	Instructions     []string  `json:"instructions"`
	ExpiresInSeconds *int      `json:"expires_in_seconds,omitempty"`
}

func (p InstrumentPayload) Instrument() domain.PaymentInstrument {
	return domain.PaymentInstrument{
		QRPayload:    p.QRPayload,
		QRImage:      p.QRImage,
		ExpiresAt:    p.ExpiresAt,
		Instructions: p.Instructions,
	}
}

type StatusResponse struct {
	Paid             bool `json:"paid"`
	ExpiresInSeconds *int `json:"expires_in_seconds,omitempty"`
}

type EligibilityResponse struct {
	CanConvert bool `json:"can_convert"`
}

type AccountRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AcceptTerms     bool   `json:"accept_terms"`
	AcceptPrivacy   bool   `json:"accept_privacy"`
}

type AccountResponse struct {
	Email string `json:"email"`
}

// Códigos de erro enviados no corpo das respostas 409 e 422.
const (
	CodeConflict         = "conflict"
	CodeAccountExists    = "account_exists"
	CodeValidation       = "validation"
	CodeWeakPassword     = "weak_password"
	CodePasswordMismatch = "password_mismatch"
	CodeConsentRequired  = "consent_required"
	CodeIdentityMissing  = "identity_unavailable"
)

// ErrorResponse é o corpo das respostas de erro.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func decodeError(body []byte) ErrorResponse {
	var e ErrorResponse
	_ = json.Unmarshal(body, &e)
	return e
}
