package checkoutapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Client fala com a API externa de checkout. Implementa todas as portas de
// rede usadas pelo controlador.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

var (
	_ ports.InvoiceService      = (*Client)(nil)
	_ ports.InstrumentGenerator = (*Client)(nil)
	_ ports.EligibilityResolver = (*Client)(nil)
	_ ports.AccountProvisioner  = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient substitui o cliente HTTP padrão (útil em testes).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetInvoice(ctx context.Context, token string) (ports.InvoiceSnapshot, error) {
	var resp InvoiceResponse
	if err := c.do(ctx, http.MethodGet, token, "", nil, &resp); err != nil {
		return ports.InvoiceSnapshot{}, err
	}
	snap := ports.InvoiceSnapshot{Invoice: resp.Invoice, ExpiresInSeconds: resp.ExpiresInSeconds}
	if resp.Instrument != nil {
		inst := resp.Instrument.Instrument()
		snap.Instrument = &inst
	}
	return snap, nil
}

func (c *Client) SubmitPayer(ctx context.Context, token string, s ports.PayerSubmission) (ports.SubmitAck, error) {
	body, err := NewPayerRequest(s.Identity, s.Address, s.TermsAccepted, s.TermsVersion)
	if err != nil {
		return ports.SubmitAck{}, &domain.ValidationError{Fields: map[string]string{"person_type": err.Error()}}
	}
	var ack PayerAck
	if err := c.do(ctx, http.MethodPost, token, "/payer", body, &ack); err != nil {
		return ports.SubmitAck{}, err
	}
	return ports.SubmitAck{ExpiresInSeconds: ack.ExpiresInSeconds}, nil
}

func (c *Client) GenerateInstrument(ctx context.Context, token string) (ports.InstrumentResult, error) {
	var resp InstrumentPayload
	if err := c.do(ctx, http.MethodPost, token, "/instrument", struct{}{}, &resp); err != nil {
		return ports.InstrumentResult{}, err
	}
	if resp.QRPayload == "" {
		return ports.InstrumentResult{}, fmt.Errorf("%w: cobrança sem qr_payload", domain.ErrTransientNetwork)
	}
	return ports.InstrumentResult{Instrument: resp.Instrument(), ExpiresInSeconds: resp.ExpiresInSeconds}, nil
}

func (c *Client) CheckSettlement(ctx context.Context, token string) (ports.SettlementStatus, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, token, "/status", nil, &resp); err != nil {
		return ports.SettlementStatus{}, err
	}
	return ports.SettlementStatus{Paid: resp.Paid, ExpiresInSeconds: resp.ExpiresInSeconds}, nil
}

func (c *Client) CanConvert(ctx context.Context, token string) (bool, error) {
	var resp EligibilityResponse
	if err := c.do(ctx, http.MethodGet, token, "/conversion-eligibility", nil, &resp); err != nil {
		return false, err
	}
	return resp.CanConvert, nil
}

func (c *Client) Benefits(ctx context.Context, token string) (domain.Benefits, error) {
	var resp domain.Benefits
	if err := c.do(ctx, http.MethodGet, token, "/benefits", nil, &resp); err != nil {
		return domain.Benefits{}, err
	}
	return resp, nil
}

func (c *Client) CreateAccount(ctx context.Context, token string, req ports.UpgradeRequest) (ports.Account, error) {
	body := AccountRequest{
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		AcceptTerms:     req.AcceptTerms,
		AcceptPrivacy:   req.AcceptPrivacy,
	}
	var resp AccountResponse
	if err := c.do(ctx, http.MethodPost, token, "/account", body, &resp); err != nil {
		return ports.Account{}, err
	}
	return ports.Account{Email: resp.Email}, nil
}

func (c *Client) do(ctx context.Context, method, token, suffix string, in, out any) error {
	endpoint := c.baseURL + "/checkout/" + url.PathEscape(token) + suffix

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("serializar requisição: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("montar requisição: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrTransientNetwork, method, suffixOrRoot(suffix), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: ler resposta: %v", domain.ErrTransientNetwork, err)
	}
	if resp.StatusCode >= 300 {
		mapped := statusError(resp.StatusCode, raw)
		c.log.Debug("checkout api respondeu com erro",
			zap.String("method", method),
			zap.String("path", suffixOrRoot(suffix)),
			zap.Int("status", resp.StatusCode),
			zap.Error(mapped))
		return mapped
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: resposta inválida: %v", domain.ErrTransientNetwork, err)
	}
	return nil
}

// statusError traduz o status HTTP para a taxonomia de erros do checkout.
func statusError(status int, body []byte) error {
	e := decodeError(body)
	msg := e.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return wrapDetail(domain.ErrNotFound, msg)
	case status == http.StatusGone:
		return wrapDetail(domain.ErrExpired, msg)
	case status == http.StatusConflict:
		if e.Code == CodeAccountExists {
			return upgradeError(domain.ErrAccountExists, msg)
		}
		return wrapDetail(domain.ErrConflict, msg)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		switch e.Code {
		case CodeWeakPassword:
			return upgradeError(domain.ErrWeakPassword, msg)
		case CodePasswordMismatch:
			return upgradeError(domain.ErrPasswordMismatch, msg)
		case CodeConsentRequired:
			return upgradeError(domain.ErrConsentRequired, msg)
		case CodeIdentityMissing:
			return upgradeError(domain.ErrIdentityMissing, msg)
		}
		fields := e.Fields
		if len(fields) == 0 {
			fields = map[string]string{"request": msg}
		}
		return &domain.ValidationError{Fields: fields}
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrTransientNetwork, status, msg)
	}
	return fmt.Errorf("checkout api: status %d: %s", status, msg)
}

// detailOf descarta a mensagem do servidor quando ela só repete o sentinel,
// ou quando começa por ele (caso de erros já embrulhados do outro lado).
func detailOf(sentinel error, msg string) string {
	text := sentinel.Error()
	if msg == text {
		return ""
	}
	return strings.TrimPrefix(msg, text+": ")
}

func wrapDetail(sentinel error, msg string) error {
	if detail := detailOf(sentinel, msg); detail != "" {
		return fmt.Errorf("%w: %s", sentinel, detail)
	}
	return sentinel
}

func upgradeError(reason error, msg string) error {
	return &domain.UpgradeError{Reason: reason, Detail: detailOf(reason, msg)}
}

func suffixOrRoot(suffix string) string {
	if suffix == "" {
		return "/"
	}
	return suffix
}
