// internal/core/auth/service.go
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/iterator"
)

const usersCollection = "users"

// DefaultRoles são as permissões de uma conta criada a partir do checkout.
var DefaultRoles = []string{"payer"}

var ErrInvalidCredentials = errors.New("usuário ou senha inválidos")

// Service cria contas de pagadores convertidos e autentica essas contas.
type Service interface {
	ports.AccountProvisioner
	Login(ctx context.Context, email, password string) (string, error)
}

type service struct {
	db       *firestore.Client
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewService(db *firestore.Client, jwtSecret []byte, tokenTTL time.Duration, logger *zap.Logger) Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{db: db, secret: jwtSecret, tokenTTL: tokenTTL, now: time.Now, log: logger}
}

// User representa a estrutura de um usuário no Firestore.
type User struct {
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	Roles        []string  `firestore:"roles"`
	DisplayName  string    `firestore:"displayName"`
	PersonType   string    `firestore:"personType"`
	TaxID        string    `firestore:"taxId"`
	SourceToken  string    `firestore:"sourceCheckoutToken"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// RequiresIdentity indica que a conta é montada a partir da identidade
// coletada no checkout; o serviço não busca o pagador em outro lugar.
func (s *service) RequiresIdentity() bool { return true }

// CreateAccount grava o usuário com a identidade coletada no checkout. O
// e-mail é a chave de unicidade; a checagem e a gravação rodam numa transação.
func (s *service) CreateAccount(ctx context.Context, token string, req ports.UpgradeRequest) (ports.Account, error) {
	if req.Identity == nil {
		return ports.Account{}, &domain.UpgradeError{Reason: domain.ErrIdentityMissing}
	}
	user, err := NewUser(req.Identity, req.Password, token, s.now())
	if err != nil {
		return ports.Account{}, err
	}

	users := s.db.Collection(usersCollection)
	err = s.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		iter := tx.Documents(users.Where("email", "==", user.Email).Limit(1))
		defer iter.Stop()
		_, err := iter.Next()
		if err == nil {
			return &domain.UpgradeError{Reason: domain.ErrAccountExists}
		}
		if err != iterator.Done {
			return err
		}
		return tx.Create(users.NewDoc(), user)
	})
	if err != nil {
		var uerr *domain.UpgradeError
		if errors.As(err, &uerr) {
			return ports.Account{}, err
		}
		s.log.Error("erro ao gravar usuário no Firestore", zap.Error(err))
		return ports.Account{}, errors.New("erro ao consultar o banco de dados")
	}
	s.log.Info("conta criada", zap.String("person_type", user.PersonType))
	return ports.Account{Email: user.Email}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	query := s.db.Collection(usersCollection).Where("email", "==", NormalizeEmail(email)).Limit(1).Documents(ctx)
	defer query.Stop()

	doc, err := query.Next()
	if err == iterator.Done {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		s.log.Error("erro detalhado do Firestore", zap.Error(err))
		return "", errors.New("erro ao consultar o banco de dados")
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return "", errors.New("erro ao ler dados do usuário")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return IssueLoginToken(s.secret, user, s.tokenTTL, s.now())
}

// NewUser monta o documento do usuário com a senha já em hash.
func NewUser(identity domain.PayerIdentity, password, sourceToken string, now time.Time) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return User{}, &domain.UpgradeError{Reason: domain.ErrWeakPassword, Detail: "senha longa demais"}
		}
		return User{}, err
	}
	user := User{
		Email:        NormalizeEmail(identity.ContactEmail()),
		PasswordHash: string(hash),
		Roles:        DefaultRoles,
		DisplayName:  identity.DisplayName(),
		PersonType:   string(identity.PersonType()),
		SourceToken:  sourceToken,
		CreatedAt:    now.UTC(),
	}
	switch id := identity.(type) {
	case domain.Individual:
		user.TaxID = id.TaxID
	case domain.Organization:
		user.TaxID = id.TaxID
	}
	return user, nil
}

// IssueLoginToken gera o JWT com as permissões (roles) do usuário.
func IssueLoginToken(secret []byte, user User, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Email,
		"roles":    user.Roles,
		"exp":      now.Add(ttl).Unix(),
	})
	tokenString, err := claims.SignedString(secret)
	if err != nil {
		return "", errors.New("erro ao gerar token de acesso")
	}
	return tokenString, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
