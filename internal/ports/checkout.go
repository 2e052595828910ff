package ports

import (
	"context"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
)

// InvoiceSnapshot é a resposta de GET /checkout/{token}.
type InvoiceSnapshot struct {
	Invoice          domain.Invoice
	ExpiresInSeconds int
	Instrument       *domain.PaymentInstrument
}

type PayerSubmission struct {
	Identity      domain.PayerIdentity
	Address       domain.Address
	TermsAccepted bool
	TermsVersion  string
}

// SubmitAck confirma o recebimento dos dados do pagador. ExpiresInSeconds é nil
// quando o servidor não reenviou o prazo.
type SubmitAck struct {
	ExpiresInSeconds *int
}

type InstrumentResult struct {
	Instrument       domain.PaymentInstrument
	ExpiresInSeconds *int
}

type SettlementStatus struct {
	Paid             bool
	ExpiresInSeconds *int
}

type UpgradeRequest struct {
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
	AcceptPrivacy   bool
	// Identity é usada por provisionadores locais; o serviço remoto já conhece o pagador.
	Identity domain.PayerIdentity
}

type Account struct {
	Email string
}

// InvoiceService é o serviço externo dono das faturas.
type InvoiceService interface {
	GetInvoice(ctx context.Context, token string) (InvoiceSnapshot, error)
	SubmitPayer(ctx context.Context, token string, submission PayerSubmission) (SubmitAck, error)
	CheckSettlement(ctx context.Context, token string) (SettlementStatus, error)
}

// InstrumentGenerator emite a cobrança PIX para um pagador já validado.
type InstrumentGenerator interface {
	GenerateInstrument(ctx context.Context, token string) (InstrumentResult, error)
}

// EligibilityResolver decide, após o pagamento, se o pagador pode virar cliente.
type EligibilityResolver interface {
	CanConvert(ctx context.Context, token string) (bool, error)
	Benefits(ctx context.Context, token string) (domain.Benefits, error)
}

// AccountProvisioner cria a conta na plataforma a partir da identidade coletada.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, token string, req UpgradeRequest) (Account, error)
}

// IdentityRequirer é implementado pelo provisionador que só cria a conta com a
// identidade coletada nesta sessão. Sem ela a oferta de conversão não é exibida.
type IdentityRequirer interface {
	RequiresIdentity() bool
}

// SnapshotStore guarda a última visão de cada sessão para outras réplicas.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.SessionSnapshot) error
	Get(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// EventPublisher entrega eventos do ciclo de vida da sessão a outros serviços.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
