package sunat

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	sunatcat "github.com/witalo/inova/pkg/sunat"
)

var (
	unidades = []string{
		"", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE",
		"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISEIS", "DIECISIETE",
		"DIECIOCHO", "DIECINUEVE", "VEINTE", "VEINTIUNO", "VEINTIDOS", "VEINTITRES",
		"VEINTICUATRO", "VEINTICINCO", "VEINTISEIS", "VEINTISIETE", "VEINTIOCHO", "VEINTINUEVE",
	}
	decenas = []string{
		"", "", "", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA",
	}
	centenas = []string{
		"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS",
		"SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS",
	}
)

// AmountInWords construye la leyenda 1000 de SUNAT: el importe total en
// letras, por ejemplo "CIENTO DIECIOCHO CON 00/100 SOLES".
func AmountInWords(amount decimal.Decimal, currency string) string {
	entero := amount.Truncate(0)
	centimos := amount.Sub(entero).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if centimos < 0 {
		centimos = -centimos
	}

	moneda := "SOLES"
	if currency == sunatcat.CurrencyDolares {
		moneda = "DOLARES AMERICANOS"
	}
	return fmt.Sprintf("%s CON %02d/100 %s", numberToWords(entero.IntPart()), centimos, moneda)
}

func numberToWords(n int64) string {
	if n == 0 {
		return "CERO"
	}
	if n < 0 {
		return "MENOS " + numberToWords(-n)
	}

	var parts []string
	if millones := n / 1_000_000; millones > 0 {
		if millones == 1 {
			parts = append(parts, "UN MILLON")
		} else {
			parts = append(parts, apocope(numberToWords(millones))+" MILLONES")
		}
		n %= 1_000_000
	}
	if miles := n / 1000; miles > 0 {
		if miles == 1 {
			parts = append(parts, "MIL")
		} else {
			parts = append(parts, apocope(hundredsToWords(miles))+" MIL")
		}
		n %= 1000
	}
	if n > 0 {
		parts = append(parts, hundredsToWords(n))
	}
	return strings.Join(parts, " ")
}

func hundredsToWords(n int64) string {
	if n == 100 {
		return "CIEN"
	}
	var parts []string
	if c := n / 100; c > 0 {
		parts = append(parts, centenas[c])
		n %= 100
	}
	switch {
	case n == 0:
	case n < 30:
		parts = append(parts, unidades[n])
	default:
		d := decenas[n/10]
		if u := n % 10; u > 0 {
			parts = append(parts, d+" Y "+unidades[u])
		} else {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, " ")
}

// apocope ajusta "UNO" a "UN" cuando precede a MIL o MILLONES
// (VEINTIUNO -> VEINTIUN, TREINTA Y UNO -> TREINTA Y UN).
func apocope(s string) string {
	if strings.HasSuffix(s, "UNO") {
		return strings.TrimSuffix(s, "O")
	}
	return s
}
