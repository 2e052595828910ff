package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// fakeAPI implementa as portas externas com funções substituíveis por teste.
type fakeAPI struct {
	GetInvoiceFunc      func(ctx context.Context, token string) (ports.InvoiceSnapshot, error)
	SubmitPayerFunc     func(ctx context.Context, token string, s ports.PayerSubmission) (ports.SubmitAck, error)
	GenerateFunc        func(ctx context.Context, token string) (ports.InstrumentResult, error)
	CheckSettlementFunc func(ctx context.Context, token string) (ports.SettlementStatus, error)
	CanConvertFunc      func(ctx context.Context, token string) (bool, error)
	BenefitsFunc        func(ctx context.Context, token string) (domain.Benefits, error)
	CreateAccountFunc   func(ctx context.Context, token string, req ports.UpgradeRequest) (ports.Account, error)

	// RequireIdentity faz o fake se comportar como o provisionador do Firestore.
	RequireIdentity bool

	getCalls, submitCalls, generateCalls, statusCalls atomic.Int32
	eligibilityCalls, benefitsCalls, accountCalls     atomic.Int32
}

func (f *fakeAPI) GetInvoice(ctx context.Context, token string) (ports.InvoiceSnapshot, error) {
	f.getCalls.Add(1)
	if f.GetInvoiceFunc != nil {
		return f.GetInvoiceFunc(ctx, token)
	}
	return pendingInvoice(token, 900), nil
}

func (f *fakeAPI) SubmitPayer(ctx context.Context, token string, s ports.PayerSubmission) (ports.SubmitAck, error) {
	f.submitCalls.Add(1)
	if f.SubmitPayerFunc != nil {
		return f.SubmitPayerFunc(ctx, token, s)
	}
	return ports.SubmitAck{}, nil
}

func (f *fakeAPI) GenerateInstrument(ctx context.Context, token string) (ports.InstrumentResult, error) {
	f.generateCalls.Add(1)
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, token)
	}
	return ports.InstrumentResult{Instrument: testInstrument()}, nil
}

func (f *fakeAPI) CheckSettlement(ctx context.Context, token string) (ports.SettlementStatus, error) {
	f.statusCalls.Add(1)
	if f.CheckSettlementFunc != nil {
		return f.CheckSettlementFunc(ctx, token)
	}
	return ports.SettlementStatus{}, nil
}

func (f *fakeAPI) CanConvert(ctx context.Context, token string) (bool, error) {
	f.eligibilityCalls.Add(1)
	if f.CanConvertFunc != nil {
		return f.CanConvertFunc(ctx, token)
	}
	return false, nil
}

func (f *fakeAPI) Benefits(ctx context.Context, token string) (domain.Benefits, error) {
	f.benefitsCalls.Add(1)
	if f.BenefitsFunc != nil {
		return f.BenefitsFunc(ctx, token)
	}
	return domain.Benefits{Headline: "Abra sua conta", Benefits: []string{"PIX grátis"}, CTAText: "Criar conta"}, nil
}

func (f *fakeAPI) CreateAccount(ctx context.Context, token string, req ports.UpgradeRequest) (ports.Account, error) {
	f.accountCalls.Add(1)
	if f.CreateAccountFunc != nil {
		return f.CreateAccountFunc(ctx, token, req)
	}
	return ports.Account{Email: req.Identity.ContactEmail()}, nil
}

func (f *fakeAPI) RequiresIdentity() bool { return f.RequireIdentity }

func pendingInvoice(token string, expiresIn int) ports.InvoiceSnapshot {
	return ports.InvoiceSnapshot{
		Invoice: domain.Invoice{
			ID:              "inv-1",
			ShareToken:      token,
			Status:          domain.InvoicePending,
			CryptoCurrency:  "USDT",
			CryptoAmount:    decimal.RequireFromString("18.52"),
			FiatTotal:       decimal.RequireFromString("100.00"),
			BeneficiaryName: "Loja do Zé",
			TermsVersion:    "2025-01",
			ExpiresAt:       testNow.Add(time.Duration(expiresIn) * time.Second),
		},
		ExpiresInSeconds: expiresIn,
	}
}

func testInstrument() domain.PaymentInstrument {
	return domain.PaymentInstrument{
		QRPayload:    "00020101021226...6304ABCD",
		ExpiresAt:    testNow.Add(15 * time.Minute),
		Instructions: []string{"Abra o app do seu banco", "Escolha PIX copia e cola"},
	}
}

func maria() domain.Individual {
	return domain.Individual{
		FullName:  "Maria Silva",
		TaxID:     "11144477735",
		BirthDate: "1990-05-17",
		Phone:     "11987654321",
		Email:     "m@x.com",
	}
}

func fullAddress() domain.Address {
	return domain.Address{
		PostalCode:   "01310100",
		Street:       "Avenida Paulista",
		Number:       "1000",
		Neighborhood: "Bela Vista",
		City:         "São Paulo",
		State:        "SP",
	}
}

// recorder guarda os snapshots publicados pelo controlador.
type recorder struct {
	mu    sync.Mutex
	snaps []domain.SessionSnapshot
}

func (r *recorder) record(s domain.SessionSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) states() []domain.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SessionState
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func newManualController(t *testing.T, api *fakeAPI) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewController("sess-1", Config{Manual: true}, Dependencies{
		Invoices:    api,
		Instruments: api,
		Eligibility: api,
		Accounts:    api,
		Now:         func() time.Time { return testNow },
	}, rec.record)
	t.Cleanup(c.Close)
	return c, rec
}

// loadedController devolve um controlador já em CollectingIdentity.
func loadedController(t *testing.T, api *fakeAPI) (*Controller, *recorder) {
	t.Helper()
	c, rec := newManualController(t, api)
	if err := c.LoadSession(context.Background(), "tok-123"); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got := c.State(); got != domain.StateCollectingIdentity {
		t.Fatalf("estado após load = %s, esperava %s", got, domain.StateCollectingIdentity)
	}
	return c, rec
}

// awaitingController devolve um controlador já em AwaitingPayment.
func awaitingController(t *testing.T, api *fakeAPI) (*Controller, *recorder) {
	t.Helper()
	c, rec := loadedController(t, api)
	if err := c.SubmitPayerData(context.Background(), maria(), fullAddress(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	return c, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("tempo esgotado esperando: %s", what)
}
