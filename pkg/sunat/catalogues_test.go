package sunat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/witalo/inova/pkg/sunat"
)

// TestIsVoidedCommunicationType facturas y notas van por Comunicación de
// Baja; las boletas por Resumen Diario.
func TestIsVoidedCommunicationType(t *testing.T) {
	assert.True(t, sunat.IsVoidedCommunicationType(sunat.DocTypeFactura))
	assert.True(t, sunat.IsVoidedCommunicationType(sunat.DocTypeNotaCredito))
	assert.True(t, sunat.IsVoidedCommunicationType(sunat.DocTypeNotaDebito))
	assert.False(t, sunat.IsVoidedCommunicationType(sunat.DocTypeBoleta))
	assert.False(t, sunat.IsVoidedCommunicationType("99"))
}

// TestIdentityTypeFor la longitud del documento decide el tipo de identidad.
func TestIdentityTypeFor(t *testing.T) {
	assert.Equal(t, sunat.IdentityDNI, sunat.IdentityTypeFor("45678912"))
	assert.Equal(t, sunat.IdentityRUC, sunat.IdentityTypeFor("20601234565"))
	assert.Equal(t, sunat.IdentityNone, sunat.IdentityTypeFor(""))
	assert.Equal(t, sunat.IdentityNone, sunat.IdentityTypeFor("123"))
}

// TestTaxSchemesByAffectation cada afectación del catálogo 07 se resuelve
// a su tributo del catálogo 05.
func TestTaxSchemesByAffectation(t *testing.T) {
	gravado := sunat.TaxSchemesByAffectation["10"]
	assert.Equal(t, sunat.TaxSchemeIGV, gravado.Code)
	assert.Equal(t, "IGV", gravado.Name)
	assert.Equal(t, "VAT", gravado.International)

	exonerado := sunat.TaxSchemesByAffectation["20"]
	assert.Equal(t, sunat.TaxSchemeEXO, exonerado.Code)

	_, ok := sunat.TaxSchemesByAffectation["99"]
	assert.False(t, ok, "una afectación desconocida no debe resolverse")
}

// TestValidVoidReasonCodes el catálogo 09 es un conjunto cerrado.
func TestValidVoidReasonCodes(t *testing.T) {
	assert.True(t, sunat.ValidVoidReasonCodes[sunat.VoidReasonOperacion])
	assert.True(t, sunat.ValidVoidReasonCodes[sunat.VoidReasonOtros])
	assert.False(t, sunat.ValidVoidReasonCodes["00"])
	assert.False(t, sunat.ValidVoidReasonCodes["99"])
}
