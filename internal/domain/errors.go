package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("fatura não encontrada")
	ErrExpired           = errors.New("prazo de pagamento expirado")
	ErrInvoiceClosed     = errors.New("fatura cancelada ou rejeitada")
	ErrTransientNetwork  = errors.New("falha temporária de comunicação")
	ErrConflict          = errors.New("já existe um instrumento de pagamento ativo")
	ErrInvalidTransition = errors.New("operação inválida para o estado atual da sessão")
	ErrSessionNotFound   = errors.New("sessão de checkout não encontrada")

	ErrPasswordMismatch = errors.New("as senhas não conferem")
	ErrWeakPassword     = errors.New("senha fraca")
	ErrAccountExists    = errors.New("já existe uma conta para este e-mail")
	ErrConsentRequired  = errors.New("é necessário aceitar os termos e a política de privacidade")
	ErrIdentityMissing  = errors.New("dados do pagador indisponíveis para criar a conta")
)

// TransitionError descreve uma operação chamada a partir de um estado inválido.
type TransitionError struct {
	Op    string
	State SessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %v (estado %s)", e.Op, ErrInvalidTransition, e.State)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError carrega os erros por campo do formulário do pagador.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "dados inválidos: " + strings.Join(parts, "; ")
}

// UpgradeError é uma falha recuperável da criação de conta.
type UpgradeError struct {
	Reason error
	Detail string
}

func (e *UpgradeError) Error() string {
	if e.Detail != "" {
		return e.Reason.Error() + ": " + e.Detail
	}
	return e.Reason.Error()
}

func (e *UpgradeError) Unwrap() error { return e.Reason }
