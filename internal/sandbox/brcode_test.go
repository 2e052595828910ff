package sandbox

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCRC16(t *testing.T) {
	if got := CRC16("123456789"); got != 0x29B1 {
		t.Errorf("CRC16 = %04X, esperava 29B1", got)
	}
}

func TestBRCodeEncode(t *testing.T) {
	code := BRCode{
		Key:          "sandbox@checkout.dev",
		MerchantName: "Loja do Zé",
		MerchantCity: "São Paulo",
		Amount:       decimal.RequireFromString("100"),
		TxID:         "3f2a-91c0-44",
	}
	payload, err := code.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantParts := []string{
		"000201",
		"010212",
		"26420014br.gov.bcb.pix0120sandbox@checkout.dev",
		"52040000",
		"5303986",
		"5406100.00",
		"5802BR",
		"5910LOJA DO ZE",
		"6009SAO PAULO",
		"621405103f2a91c044",
		"6304",
	}
	for _, p := range wantParts {
		if !strings.Contains(payload, p) {
			t.Errorf("payload %q não contém %q", payload, p)
		}
	}
	if !strings.HasPrefix(payload, "000201010212") {
		t.Errorf("prefixo inesperado: %s", payload)
	}
	if !VerifyCRC(payload) {
		t.Errorf("CRC inválido em %s", payload)
	}
	tampered := strings.Replace(payload, "100.00", "900.00", 1)
	if VerifyCRC(tampered) {
		t.Error("payload adulterado passou na verificação")
	}
}

func TestBRCodeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		code BRCode
	}{
		{"sem chave", BRCode{Amount: decimal.NewFromInt(1)}},
		{"valor zero", BRCode{Key: "k", Amount: decimal.Zero}},
		{"valor negativo", BRCode{Key: "k", Amount: decimal.NewFromInt(-5)}},
		{"chave longa", BRCode{Key: strings.Repeat("k", 90), Amount: decimal.NewFromInt(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.code.Encode(); err == nil {
				t.Error("esperava erro")
			}
		})
	}
}

func TestFoldASCII(t *testing.T) {
	tests := []struct{ in, want string }{
		{"São João", "SAO JOAO"},
		{"Açaí & Cia.", "ACAI  CIA."},
		{"  Padaria Pão  ", "PADARIA PAO"},
		{"Zé-Müller Ltda", "ZE-MULLER LTDA"},
	}
	for _, tc := range tests {
		if got := FoldASCII(tc.in); got != tc.want {
			t.Errorf("FoldASCII(%q) = %q, esperava %q", tc.in, got, tc.want)
		}
	}
}
