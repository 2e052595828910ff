package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IDs dos campos EMV usados no BR Code (PIX copia e cola).
const (
	idPayloadFormat   = "00"
	idInitiation      = "01"
	idMerchantAccount = "26"
	idCategory        = "52"
	idCurrency        = "53"
	idAmount          = "54"
	idCountry         = "58"
	idMerchantName    = "59"
	idMerchantCity    = "60"
	idAdditionalData  = "62"
	idCRC             = "63"

	pixGUI       = "br.gov.bcb.pix"
	currencyBRL  = "986"
	maxNameLen   = 25
	maxCityLen   = 15
	maxTxIDLen   = 25
	maxFieldSize = 99
)

// BRCode é uma cobrança PIX de uso único com valor fixo.
type BRCode struct {
	Key          string
	MerchantName string
	MerchantCity string
	Amount       decimal.Decimal
	TxID         string
}

// Encode gera o payload EMV com o CRC16 no final.
func (b BRCode) Encode() (string, error) {
	if b.Key == "" {
		return "", errors.New("chave PIX obrigatória")
	}
	if !b.Amount.IsPositive() {
		return "", fmt.Errorf("valor inválido: %s", b.Amount)
	}
	account, err := field("00", pixGUI)
	if err != nil {
		return "", err
	}
	key, err := field("01", b.Key)
	if err != nil {
		return "", err
	}
	txid, err := field("05", sanitizeTxID(b.TxID))
	if err != nil {
		return "", err
	}

	parts := []struct{ id, value string }{
		{idPayloadFormat, "01"},
		{idInitiation, "12"},
		{idMerchantAccount, account + key},
		{idCategory, "0000"},
		{idCurrency, currencyBRL},
		{idAmount, b.Amount.StringFixed(2)},
		{idCountry, "BR"},
		{idMerchantName, truncate(FoldASCII(b.MerchantName), maxNameLen)},
		{idMerchantCity, truncate(FoldASCII(b.MerchantCity), maxCityLen)},
		{idAdditionalData, txid},
	}
	var sb strings.Builder
	for _, p := range parts {
		f, err := field(p.id, p.value)
		if err != nil {
			return "", err
		}
		sb.WriteString(f)
	}
	sb.WriteString(idCRC + "04")
	return sb.String() + fmt.Sprintf("%04X", CRC16(sb.String())), nil
}

// VerifyCRC confere o CRC dos últimos quatro caracteres do payload.
func VerifyCRC(payload string) bool {
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != idCRC+"04" {
		return false
	}
	body, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	return fmt.Sprintf("%04X", CRC16(body)) == sum
}

// CRC16 é o CRC-16/CCITT-FALSE (polinômio 0x1021, valor inicial 0xFFFF).
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// FoldASCII remove acentos e deixa apenas caracteres aceitos pelo BR Code.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, _ := transform.String(t, s)
	var sb strings.Builder
	for _, r := range folded {
		if r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '.' || r == '-') {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return strings.TrimSpace(sb.String())
}

func field(id, value string) (string, error) {
	if len(value) > maxFieldSize {
		return "", fmt.Errorf("campo %s excede %d caracteres", id, maxFieldSize)
	}
	return fmt.Sprintf("%s%02d%s", id, len(value), value), nil
}

func sanitizeTxID(txid string) string {
	var sb strings.Builder
	for _, r := range txid {
		if r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		}
	}
	out := truncate(sb.String(), maxTxIDLen)
	if out == "" {
		return "***"
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
