package sandbox

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/checkoutapi"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/checkout"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store  *Store
	clock  *clock
	client *checkoutapi.Client
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := &clock{now: time.Now()}
	store := NewStore(clk.Now)
	srv := httptest.NewServer(NewServer(cfg, store, nil).Router())
	t.Cleanup(srv.Close)
	return &env{
		store:  store,
		clock:  clk,
		client: checkoutapi.NewClient(srv.URL, 2*time.Second, checkoutapi.WithHTTPClient(srv.Client())),
	}
}

func (e *env) invoice(t *testing.T, token string, convertible bool) {
	t.Helper()
	_, err := e.store.Create(InvoiceSeed{
		ShareToken:      token,
		CryptoCurrency:  "USDT",
		CryptoAmount:    decimal.RequireFromString("18.52"),
		FiatTotal:       decimal.RequireFromString("100.00"),
		BeneficiaryName: "Loja do Zé",
		ExpiresIn:       15 * time.Minute,
		Convertible:     convertible,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func (e *env) controller(t *testing.T) *checkout.Controller {
	t.Helper()
	c := checkout.NewController("sess", checkout.Config{Manual: true, ManualConfirmEvery: time.Millisecond}, checkout.Dependencies{
		Invoices:    e.client,
		Instruments: e.client,
		Eligibility: e.client,
		Accounts:    e.client,
	}, nil)
	t.Cleanup(c.Close)
	return c
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

func address() domain.Address {
	return domain.Address{
		PostalCode:   "01310100",
		Street:       "Avenida Paulista",
		Number:       "1000",
		Neighborhood: "Bela Vista",
		City:         "São Paulo",
		State:        "SP",
	}
}

func TestEndToEndCheckout(t *testing.T) {
	e := newEnv(t, Config{})
	e.invoice(t, "tok-e2e", true)
	c := e.controller(t)
	ctx := context.Background()

	if err := c.LoadSession(ctx, "tok-e2e"); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != domain.StateAwaitingPayment || snap.Instrument == nil {
		t.Fatalf("após envio = %+v", snap)
	}
	if !VerifyCRC(snap.Instrument.QRPayload) {
		t.Errorf("BR Code com CRC inválido: %s", snap.Instrument.QRPayload)
	}

	if err := c.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if c.State() != domain.StateAwaitingPayment {
		t.Fatalf("estado = %s antes do pagamento", c.State())
	}

	if err := e.store.MarkPaid("tok-e2e"); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if err := c.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	snap = c.Snapshot()
	if snap.State != domain.StateOfferingConversion || snap.Offer == nil {
		t.Fatalf("após pagamento = %+v", snap)
	}

	if _, err := c.StartAccountUpgrade(ctx, "segredo123", "segredo123", true, true); err != nil {
		t.Fatalf("StartAccountUpgrade: %v", err)
	}
	if snap := c.Snapshot(); snap.State != domain.StateCompleted || snap.AccountEmail != "m@x.com" {
		t.Errorf("final = %+v", snap)
	}
}

func TestEndToEndTransientStatusFailures(t *testing.T) {
	e := newEnv(t, Config{StatusFailures: 2})
	e.invoice(t, "tok-flaky", false)
	c := e.controller(t)
	ctx := context.Background()
	if err := c.LoadSession(ctx, "tok-flaky"); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.PollOnce(ctx); !errors.Is(err, domain.ErrTransientNetwork) {
			t.Fatalf("tentativa %d: erro = %v", i, err)
		}
		if c.State() != domain.StateAwaitingPayment {
			t.Fatalf("falha transitória mudou o estado para %s", c.State())
		}
	}
	if err := e.store.MarkPaid("tok-flaky"); err != nil {
		t.Fatal(err)
	}
	if err := c.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if c.State() != domain.StatePaid {
		t.Errorf("estado = %s, esperava Paid (fatura não conversível)", c.State())
	}
}

func TestEndToEndExpiredAndCancelled(t *testing.T) {
	t.Run("expirada antes de abrir", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.invoice(t, "tok-old", false)
		e.clock.Advance(16 * time.Minute)
		c := e.controller(t)
		if err := c.LoadSession(context.Background(), "tok-old"); err != nil {
			t.Fatal(err)
		}
		if c.State() != domain.StateExpired {
			t.Errorf("estado = %s", c.State())
		}
	})
	t.Run("expira depois do envio", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.invoice(t, "tok-late", false)
		c := e.controller(t)
		ctx := context.Background()
		if err := c.LoadSession(ctx, "tok-late"); err != nil {
			t.Fatal(err)
		}
		if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
			t.Fatal(err)
		}
		e.clock.Advance(16 * time.Minute)
		if err := c.PollOnce(ctx); !errors.Is(err, domain.ErrExpired) {
			t.Errorf("erro = %v, esperava ErrExpired", err)
		}
		if c.State() != domain.StateExpired {
			t.Errorf("estado = %s", c.State())
		}
	})
	t.Run("cancelada", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.invoice(t, "tok-cancel", false)
		if err := e.store.Cancel("tok-cancel"); err != nil {
			t.Fatal(err)
		}
		c := e.controller(t)
		if err := c.LoadSession(context.Background(), "tok-cancel"); err != nil {
			t.Fatal(err)
		}
		if c.State() != domain.StateError {
			t.Errorf("estado = %s", c.State())
		}
	})
	t.Run("token desconhecido", func(t *testing.T) {
		e := newEnv(t, Config{})
		c := e.controller(t)
		err := c.LoadSession(context.Background(), "nao-existe")
		if !errors.Is(err, domain.ErrNotFound) || c.State() != domain.StateError {
			t.Errorf("erro = %v, estado = %s", err, c.State())
		}
	})
}

func TestInstrumentIsGeneratedOnce(t *testing.T) {
	e := newEnv(t, Config{})
	e.invoice(t, "tok-once", false)
	ctx := context.Background()
	c := e.controller(t)
	if err := c.LoadSession(ctx, "tok-once"); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.client.GenerateInstrument(ctx, "tok-once"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("segunda cobrança: erro = %v, esperava ErrConflict", err)
	}

	// Uma nova sessão para a mesma fatura retoma a cobrança existente.
	again := e.controller(t)
	if err := again.LoadSession(ctx, "tok-once"); err != nil {
		t.Fatal(err)
	}
	if again.State() != domain.StateAwaitingPayment {
		t.Errorf("estado da nova sessão = %s", again.State())
	}
}

func TestSessionAdoptsInstrumentIssuedOutOfBand(t *testing.T) {
	e := newEnv(t, Config{})
	e.invoice(t, "tok-lost", false)
	ctx := context.Background()
	c := e.controller(t)
	if err := c.LoadSession(ctx, "tok-lost"); err != nil {
		t.Fatal(err)
	}

	// O servidor aceitou o pagador e emitiu a cobrança, mas a resposta não
	// chegou à sessão.
	if _, err := e.client.SubmitPayer(ctx, "tok-lost", portsSubmission(maria())); err != nil {
		t.Fatalf("SubmitPayer: %v", err)
	}
	issued, err := e.client.GenerateInstrument(ctx, "tok-lost")
	if err != nil {
		t.Fatalf("GenerateInstrument: %v", err)
	}

	if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != domain.StateAwaitingPayment {
		t.Fatalf("estado = %s, esperava AwaitingPayment", snap.State)
	}
	if snap.Instrument == nil || snap.Instrument.QRPayload != issued.Instrument.QRPayload {
		t.Fatalf("instrumento = %+v, esperava o já emitido", snap.Instrument)
	}

	if err := e.store.MarkPaid("tok-lost"); err != nil {
		t.Fatal(err)
	}
	if err := c.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if c.State() != domain.StatePaid {
		t.Errorf("estado = %s, esperava Paid", c.State())
	}
}

func TestConflictMessageIsNotDuplicated(t *testing.T) {
	e := newEnv(t, Config{})
	e.invoice(t, "tok-dup", false)
	ctx := context.Background()
	if _, err := e.client.SubmitPayer(ctx, "tok-dup", portsSubmission(maria())); err != nil {
		t.Fatal(err)
	}
	if _, err := e.client.GenerateInstrument(ctx, "tok-dup"); err != nil {
		t.Fatal(err)
	}
	_, err := e.client.GenerateInstrument(ctx, "tok-dup")
	if !errors.Is(err, domain.ErrConflict) || err.Error() != domain.ErrConflict.Error() {
		t.Errorf("erro = %q, esperava %q", err, domain.ErrConflict)
	}
}

func TestAccountAlreadyExistsMakesPayerIneligible(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	for _, tok := range []string{"tok-a", "tok-b"} {
		e.invoice(t, tok, true)
		c := e.controller(t)
		if err := c.LoadSession(ctx, tok); err != nil {
			t.Fatal(err)
		}
		if err := c.SubmitPayerData(ctx, maria(), address(), true); err != nil {
			t.Fatal(err)
		}
		if err := e.store.MarkPaid(tok); err != nil {
			t.Fatal(err)
		}
		if err := c.PollOnce(ctx); err != nil {
			t.Fatal(err)
		}
		if tok == "tok-a" {
			if _, err := c.StartAccountUpgrade(ctx, "segredo123", "segredo123", true, true); err != nil {
				t.Fatalf("StartAccountUpgrade: %v", err)
			}
			continue
		}
		if c.State() != domain.StatePaid {
			t.Errorf("pagador com conta existente recebeu oferta: %s", c.State())
		}
	}
}

func TestServerRejectsInvalidPayer(t *testing.T) {
	e := newEnv(t, Config{})
	e.invoice(t, "tok-v", false)
	bad := maria()
	bad.TaxID = "1"
	_, err := e.client.SubmitPayer(context.Background(), "tok-v", portsSubmission(bad))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["cpf"] == "" {
		t.Errorf("erro = %v, esperava ValidationError com cpf", err)
	}
}

func TestLoadSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	body := `
invoices:
  - share_token: demo
    crypto_currency: USDT
    crypto_amount: "18.52"
    fiat_total: "100.00"
    beneficiary_name: Loja do Zé
    expires_in: 15m
    convertible: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	seeds, err := LoadSeeds(path)
	if err != nil {
		t.Fatalf("LoadSeeds: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("seeds = %+v", seeds)
	}
	s := seeds[0]
	if s.ShareToken != "demo" || !s.FiatTotal.Equal(decimal.NewFromInt(100)) || s.ExpiresIn != 15*time.Minute || !s.Convertible {
		t.Errorf("seed = %+v", s)
	}
}

func portsSubmission(id domain.PayerIdentity) ports.PayerSubmission {
	return ports.PayerSubmission{Identity: id, Address: address(), TermsAccepted: true, TermsVersion: "2025-01"}
}
