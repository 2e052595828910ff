package domain

// PersonType identifica a variante do pagador (PF ou PJ).
type PersonType string

const (
	PersonIndividual   PersonType = "PF"
	PersonOrganization PersonType = "PJ"
)

// PayerIdentity é a união fechada Individual | Organization.
// Só os tipos deste pacote a implementam; use um type switch para tratar cada caso.
type PayerIdentity interface {
	PersonType() PersonType
	ContactEmail() string
	DisplayName() string
	isPayerIdentity()
}

// Individual são os dados de uma pessoa física.
type Individual struct {
	FullName  string `json:"full_name" yaml:"full_name"`
	TaxID     string `json:"cpf" yaml:"cpf"`
	BirthDate string `json:"birth_date" yaml:"birth_date"`
	Phone     string `json:"phone" yaml:"phone"`
	Email     string `json:"email" yaml:"email"`
}

func (Individual) PersonType() PersonType { return PersonIndividual }
func (i Individual) ContactEmail() string { return i.Email }
func (i Individual) DisplayName() string  { return i.FullName }
func (Individual) isPayerIdentity()       {}

// Organization são os dados de uma pessoa jurídica e do seu responsável.
type Organization struct {
	LegalName        string `json:"legal_name" yaml:"legal_name"`
	TaxID            string `json:"cnpj" yaml:"cnpj"`
	TradeName        string `json:"trade_name,omitempty" yaml:"trade_name"`
	Phone            string `json:"phone" yaml:"phone"`
	Email            string `json:"email" yaml:"email"`
	ResponsibleName  string `json:"responsible_name" yaml:"responsible_name"`
	ResponsibleTaxID string `json:"responsible_cpf" yaml:"responsible_cpf"`
}

func (Organization) PersonType() PersonType { return PersonOrganization }
func (o Organization) ContactEmail() string { return o.Email }
func (o Organization) DisplayName() string  { return o.LegalName }
func (Organization) isPayerIdentity()       {}

// Address é o endereço do pagador. Todos os campos são obrigatórios exceto Complement.
type Address struct {
	PostalCode   string `json:"postal_code" yaml:"postal_code"`
	Street       string `json:"street" yaml:"street"`
	Number       string `json:"number" yaml:"number"`
	Complement   string `json:"complement,omitempty" yaml:"complement"`
	Neighborhood string `json:"neighborhood" yaml:"neighborhood"`
	City         string `json:"city" yaml:"city"`
	State        string `json:"state" yaml:"state"`
}
