package validation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// Mensagens devolvidas por campo. O frontend exibe o texto como está.
const (
	reasonRequired     = "campo obrigatório"
	reasonTooShort     = "texto muito curto"
	reasonCPF          = "CPF deve ter 11 dígitos"
	reasonCNPJ         = "CNPJ deve ter 14 dígitos"
	reasonBirthDate    = "data de nascimento inválida"
	reasonPhone        = "telefone deve ter ao menos 10 dígitos"
	reasonEmail        = "e-mail inválido"
	reasonPostalCode   = "CEP deve ter 8 dígitos"
	reasonState        = "UF deve ter 2 letras"
	reasonTermsMissing = "é necessário aceitar os termos"
)

var birthDateLayouts = []string{"2006-01-02", "02/01/2006"}

// Service valida os dados do pagador sem acesso à rede.
type Service interface {
	ValidatePayer(identity domain.PayerIdentity, address *domain.Address, termsAccepted bool) map[string]string
}

type service struct{}

func NewService() Service {
	return &service{}
}

// ValidatePayer devolve um mapa campo -> motivo. Mapa vazio significa dados aceitos.
func (s *service) ValidatePayer(identity domain.PayerIdentity, address *domain.Address, termsAccepted bool) map[string]string {
	errs := ValidateIdentity(identity)
	if address == nil {
		errs["address"] = reasonRequired
	} else {
		for field, reason := range ValidateAddress(*address) {
			errs["address."+field] = reason
		}
	}
	if !termsAccepted {
		errs["terms_accepted"] = reasonTermsMissing
	}
	return errs
}

// ValidateIdentity aplica as regras da variante PF ou PJ.
func ValidateIdentity(identity domain.PayerIdentity) map[string]string {
	errs := make(map[string]string)
	switch id := identity.(type) {
	case domain.Individual:
		minText(errs, "full_name", id.FullName, 5)
		digitsExactly(errs, "cpf", id.TaxID, 11, reasonCPF)
		if strings.TrimSpace(id.BirthDate) == "" {
			errs["birth_date"] = reasonRequired
		} else if _, ok := ParseBirthDate(id.BirthDate); !ok {
			errs["birth_date"] = reasonBirthDate
		}
		phone(errs, "phone", id.Phone)
		email(errs, "email", id.Email)
	case domain.Organization:
		minText(errs, "legal_name", id.LegalName, 5)
		digitsExactly(errs, "cnpj", id.TaxID, 14, reasonCNPJ)
		phone(errs, "phone", id.Phone)
		email(errs, "email", id.Email)
		minText(errs, "responsible_name", id.ResponsibleName, 5)
		digitsExactly(errs, "responsible_cpf", id.ResponsibleTaxID, 11, reasonCPF)
	case nil:
		errs["person_type"] = reasonRequired
	default:
		errs["person_type"] = "tipo de pessoa desconhecido"
	}
	return errs
}

// ValidateAddress aplica as regras de endereço. Complement é opcional.
func ValidateAddress(a domain.Address) map[string]string {
	errs := make(map[string]string)
	digitsExactly(errs, "postal_code", a.PostalCode, 8, reasonPostalCode)
	minText(errs, "street", a.Street, 3)
	if strings.TrimSpace(a.Number) == "" {
		errs["number"] = reasonRequired
	}
	minText(errs, "neighborhood", a.Neighborhood, 2)
	minText(errs, "city", a.City, 2)
	if st := strings.TrimSpace(a.State); st == "" {
		errs["state"] = reasonRequired
	} else if utf8.RuneCountInString(st) != 2 {
		errs["state"] = reasonState
	}
	return errs
}

// ParseBirthDate aceita AAAA-MM-DD ou DD/MM/AAAA e rejeita datas inexistentes (ex.: 31/02).
func ParseBirthDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Digits remove tudo que não for dígito (pontuação de CPF, CNPJ, CEP e telefone).
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func textLen(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(strings.TrimSpace(s)))
}

func minText(errs map[string]string, field, value string, minLen int) {
	n := textLen(value)
	switch {
	case n == 0:
		errs[field] = reasonRequired
	case n < minLen:
		errs[field] = reasonTooShort
	}
}

func digitsExactly(errs map[string]string, field, value string, want int, reason string) {
	if strings.TrimSpace(value) == "" {
		errs[field] = reasonRequired
		return
	}
	if len(Digits(value)) != want {
		errs[field] = reason
	}
}

func phone(errs map[string]string, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs[field] = reasonRequired
		return
	}
	if len(Digits(value)) < 10 {
		errs[field] = reasonPhone
	}
}

func email(errs map[string]string, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		errs[field] = reasonRequired
		return
	}
	if !strings.Contains(value, "@") {
		errs[field] = reasonEmail
	}
}
