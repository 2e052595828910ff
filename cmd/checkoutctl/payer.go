package main

import (
	"fmt"
	"os"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"gopkg.in/yaml.v3"
)

// payerFile é o arquivo YAML com os dados do pagador.
type payerFile struct {
	PersonType    domain.PersonType    `yaml:"person_type"`
	Individual    *domain.Individual   `yaml:"pf_data"`
	Organization  *domain.Organization `yaml:"pj_data"`
	Address       domain.Address       `yaml:"address"`
	TermsAccepted bool                 `yaml:"terms_accepted"`
}

func loadPayer(path string) (domain.PayerIdentity, domain.Address, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Address{}, false, fmt.Errorf("abrir arquivo do pagador: %w", err)
	}
	var f payerFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, domain.Address{}, false, fmt.Errorf("ler arquivo do pagador %s: %w", path, err)
	}
	var identity domain.PayerIdentity
	switch f.PersonType {
	case domain.PersonIndividual:
		if f.Individual == nil {
			return nil, domain.Address{}, false, fmt.Errorf("person_type PF exige pf_data")
		}
		identity = *f.Individual
	case domain.PersonOrganization:
		if f.Organization == nil {
			return nil, domain.Address{}, false, fmt.Errorf("person_type PJ exige pj_data")
		}
		identity = *f.Organization
	default:
		return nil, domain.Address{}, false, fmt.Errorf("person_type inválido: %q", f.PersonType)
	}
	return identity, f.Address, f.TermsAccepted, nil
}
