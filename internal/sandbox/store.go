package sandbox

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// InvoiceSeed descreve uma fatura criada pelo operador do sandbox.
type InvoiceSeed struct {
	ShareToken      string          `yaml:"share_token" json:"share_token"`
	CryptoCurrency  string          `yaml:"crypto_currency" json:"crypto_currency" binding:"required"`
	CryptoAmount    decimal.Decimal `yaml:"crypto_amount" json:"crypto_amount"`
	FiatTotal       decimal.Decimal `yaml:"fiat_total" json:"fiat_total"`
	BeneficiaryName string          `yaml:"beneficiary_name" json:"beneficiary_name" binding:"required"`
	Verified        bool            `yaml:"beneficiary_verified" json:"beneficiary_verified"`
	ExpiresIn       time.Duration   `yaml:"expires_in" json:"-"`
	// Convertible indica se o pagador recebe a oferta de conta depois de pagar.
	Convertible bool `yaml:"convertible" json:"convertible"`
}

type seedFile struct {
	Invoices []InvoiceSeed `yaml:"invoices"`
}

// LoadSeeds lê as faturas iniciais de um arquivo YAML.
func LoadSeeds(path string) ([]InvoiceSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("abrir seeds: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("ler seeds %s: %w", path, err)
	}
	return f.Invoices, nil
}

type record struct {
	invoice     domain.Invoice
	convertible bool
	payer       domain.PayerIdentity
	address     domain.Address
	instrument  *domain.PaymentInstrument
}

// Store guarda as faturas do sandbox em memória.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	invoices map[string]*record
	accounts map[string]bool
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		invoices: make(map[string]*record),
		accounts: make(map[string]bool),
	}
}

// Create registra a fatura e devolve o token compartilhável.
func (s *Store) Create(seed InvoiceSeed) (domain.Invoice, error) {
	if !seed.FiatTotal.IsPositive() {
		return domain.Invoice{}, fmt.Errorf("fiat_total deve ser positivo")
	}
	if seed.ExpiresIn <= 0 {
		seed.ExpiresIn = 15 * time.Minute
	}
	token := seed.ShareToken
	if token == "" {
		token = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	inv := domain.Invoice{
		ID:                  uuid.NewString(),
		ShareToken:          token,
		Status:              domain.InvoicePending,
		CryptoCurrency:      seed.CryptoCurrency,
		CryptoAmount:        seed.CryptoAmount,
		FiatTotal:           seed.FiatTotal.Round(2),
		BeneficiaryName:     seed.BeneficiaryName,
		BeneficiaryVerified: seed.Verified,
		ExpiresAt:           s.now().Add(seed.ExpiresIn).UTC(),
		TermsVersion:        "2025-01",
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[token]; exists {
		return domain.Invoice{}, fmt.Errorf("token %s já existe", token)
	}
	s.invoices[token] = &record{invoice: inv, convertible: seed.Convertible}
	return inv, nil
}

// get devolve o registro com o status de expiração já aplicado. Chamar com mu travado.
func (s *Store) get(token string) (*record, bool) {
	rec, ok := s.invoices[token]
	if !ok {
		return nil, false
	}
	if !rec.invoice.Status.Settled() && !rec.invoice.Status.Closed() && !s.now().Before(rec.invoice.ExpiresAt) {
		rec.invoice.Status = domain.InvoiceExpired
	}
	return rec, true
}

func (s *Store) expiresIn(rec *record) int {
	secs := int(rec.invoice.ExpiresAt.Sub(s.now()).Seconds())
	if secs < 0 || rec.invoice.Status == domain.InvoiceExpired {
		return 0
	}
	return secs
}

// MarkPaid simula a compensação do PIX.
func (s *Store) MarkPaid(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.get(token)
	if !ok {
		return domain.ErrNotFound
	}
	switch {
	case rec.invoice.Status == domain.InvoiceExpired:
		return domain.ErrExpired
	case rec.instrument == nil:
		return domain.ErrInvalidTransition
	}
	rec.invoice.Status = domain.InvoicePaid
	return nil
}

// Cancel encerra a fatura sem pagamento.
func (s *Store) Cancel(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.get(token)
	if !ok {
		return domain.ErrNotFound
	}
	if rec.invoice.Status.Settled() {
		return domain.ErrInvalidTransition
	}
	rec.invoice.Status = domain.InvoiceCancelled
	return nil
}
