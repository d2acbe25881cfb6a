package sunat_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/witalo/inova/internal/infrastructure/sunat"
)

// TestAmountInWords cubre las formas irregulares del castellano: quince,
// veintiuno, cien/ciento, el apócope UN antes de MIL/MILLONES y los céntimos.
func TestAmountInWords(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"0", "PEN", "CERO CON 00/100 SOLES"},
		{"1", "PEN", "UNO CON 00/100 SOLES"},
		{"15.50", "PEN", "QUINCE CON 50/100 SOLES"},
		{"21", "PEN", "VEINTIUNO CON 00/100 SOLES"},
		{"100", "PEN", "CIEN CON 00/100 SOLES"},
		{"118", "PEN", "CIENTO DIECIOCHO CON 00/100 SOLES"},
		{"500", "PEN", "QUINIENTOS CON 00/100 SOLES"},
		{"777", "PEN", "SETECIENTOS SETENTA Y SIETE CON 00/100 SOLES"},
		{"1000", "PEN", "MIL CON 00/100 SOLES"},
		{"1118.05", "PEN", "MIL CIENTO DIECIOCHO CON 05/100 SOLES"},
		{"21000", "PEN", "VEINTIUN MIL CON 00/100 SOLES"},
		{"31000", "PEN", "TREINTA Y UN MIL CON 00/100 SOLES"},
		{"100000", "PEN", "CIEN MIL CON 00/100 SOLES"},
		{"1000000", "PEN", "UN MILLON CON 00/100 SOLES"},
		{"2500000", "PEN", "DOS MILLONES QUINIENTOS MIL CON 00/100 SOLES"},
		{"250.75", "USD", "DOSCIENTOS CINCUENTA CON 75/100 DOLARES AMERICANOS"},
	}
	for _, tc := range cases {
		t.Run(tc.amount+"_"+tc.currency, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			assert.Equal(t, tc.want, sunat.AmountInWords(amount, tc.currency))
		})
	}
}
