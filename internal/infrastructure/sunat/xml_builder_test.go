package sunat_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/infrastructure/sunat"
)

func testCompany() *entity.Company {
	return &entity.Company{
		ID:           1,
		RUC:          "20601234567",
		Denomination: "COMERCIAL ANDINA S.A.C.",
		Address:      "AV. EJERCITO 123",
		Environment:  "BETA",
	}
}

func testOperation(docCode string) *entity.Operation {
	return &entity.Operation{
		ID:           10,
		CompanyID:    1,
		DocumentCode: docCode,
		Serial:       "F001",
		Number:       123,
		Currency:     "PEN",
		EmitDate:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		EmitTime:     "10:30:00",
		IGVPercent:   decimal.NewFromInt(18),
		IGVAmount:    decimal.NewFromInt(18),
		TotalTaxable: decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(118),
		Customer: &entity.Person{
			ID:       5,
			Document: "45678912",
			FullName: "JUAN PEREZ QUISPE",
		},
	}
}

func testDetails() []entity.OperationDetail {
	return []entity.OperationDetail{
		{
			ID: 1, OperationID: 10,
			ProductCode:     "P0001",
			Description:     "GASEOSA 500ML",
			TypeAffectation: "10",
			Quantity:        decimal.NewFromInt(2),
			UnitValue:       decimal.NewFromInt(25),
		},
		{
			ID: 2, OperationID: 10,
			ProductCode:     "P0002",
			Description:     "GALLETA SODA",
			TypeAffectation: "10",
			Quantity:        decimal.NewFromInt(5),
			UnitValue:       decimal.NewFromInt(10),
		},
	}
}

func buildXML(t *testing.T, ctx *sunat.DocumentBuildContext) string {
	t.Helper()
	svc := sunat.NewXMLBuilderService()
	out, err := svc.Build(ctx)
	require.NoError(t, err)
	return string(out)
}

// TestBuild_Factura verifica la estructura base del comprobante: declaración
// ISO-8859-1, raíz Invoice con namespace UBL, versión y serie-número.
func TestBuild_Factura(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.True(t, strings.HasPrefix(xml, `<?xml version="1.0" encoding="ISO-8859-1" standalone="no"?>`),
		"la declaración debe anunciar ISO-8859-1")
	assert.Contains(t, xml, `<Invoice`)
	assert.Contains(t, xml, `xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"`)
	assert.Contains(t, xml, "<cbc:UBLVersionID>2.1</cbc:UBLVersionID>")
	assert.Contains(t, xml, "<cbc:CustomizationID>2.0</cbc:CustomizationID>")
	assert.Contains(t, xml, "<cbc:ID>F001-123</cbc:ID>")
	assert.Contains(t, xml, "<cbc:IssueDate>2026-03-15</cbc:IssueDate>")
	assert.Contains(t, xml, "<cbc:IssueTime>10:30:00</cbc:IssueTime>")
	assert.Contains(t, xml, `<cbc:InvoiceTypeCode listID="0101"`)
}

// TestBuild_PlaceholderFirma el firmador busca un único ExtensionContent
// vacío como primer hijo; si aparece más de uno o con contenido, la firma
// terminaría en el lugar equivocado.
func TestBuild_PlaceholderFirma(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.Equal(t, 1, strings.Count(xml, "<ext:UBLExtensions>"))
	assert.Equal(t, 1, strings.Count(xml, "<ext:ExtensionContent>"))
	// El placeholder debe aparecer antes que la versión UBL.
	assert.Less(t, strings.Index(xml, "ext:UBLExtensions"), strings.Index(xml, "cbc:UBLVersionID"))
}

// TestBuild_LeyendaEnLetras la leyenda 1000 lleva el importe total en letras.
func TestBuild_LeyendaEnLetras(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})
	assert.Contains(t, xml, `<cbc:Note languageLocaleID="1000">CIENTO DIECIOCHO CON 00/100 SOLES</cbc:Note>`)
}

// TestBuild_TotalesSinDescuento sin descuento global los totales salen
// directo de la operación.
func TestBuild_TotalesSinDescuento(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.NotContains(t, xml, "cac:AllowanceCharge")
	assert.Contains(t, xml, `<cbc:LineExtensionAmount currencyID="PEN">100.00</cbc:LineExtensionAmount>`)
	assert.Contains(t, xml, `<cbc:TaxInclusiveAmount currencyID="PEN">118.00</cbc:TaxInclusiveAmount>`)
	assert.Contains(t, xml, `<cbc:PayableAmount currencyID="PEN">118.00</cbc:PayableAmount>`)
}

// TestBuild_DescuentoGlobal con descuento global el IGV se calcula sobre la
// base sin descontar y solo el PayableAmount baja. Las líneas no cambian.
func TestBuild_DescuentoGlobal(t *testing.T) {
	op := testOperation("01")
	op.GlobalDiscount = decimal.NewFromInt(10)
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: op,
		Company:   testCompany(),
		Details:   testDetails(),
	})

	// Base 100.00: IGV sigue siendo 18.00 aunque el descuento rebaje el total.
	assert.Contains(t, xml, `<cbc:TaxableAmount currencyID="PEN">100.00</cbc:TaxableAmount>`)
	assert.Contains(t, xml, `<cbc:TaxInclusiveAmount currencyID="PEN">118.00</cbc:TaxInclusiveAmount>`)
	assert.Contains(t, xml, `<cbc:AllowanceTotalAmount currencyID="PEN">10.00</cbc:AllowanceTotalAmount>`)
	assert.Contains(t, xml, `<cbc:PayableAmount currencyID="PEN">108.00</cbc:PayableAmount>`)

	// Bloque de descuento: motivo 03, factor 10/100.
	assert.Contains(t, xml, "<cbc:ChargeIndicator>false</cbc:ChargeIndicator>")
	assert.Contains(t, xml, "<cbc:MultiplierFactorNumeric>0.10000</cbc:MultiplierFactorNumeric>")
	assert.Contains(t, xml, `<cbc:BaseAmount currencyID="PEN">100.00</cbc:BaseAmount>`)

	// Las líneas conservan sus valores completos.
	assert.Contains(t, xml, `<cbc:LineExtensionAmount currencyID="PEN">50.00</cbc:LineExtensionAmount>`)
}

// TestBuild_ClientesVarios una venta sin cliente asociado sale a nombre de
// CLIENTES VARIOS con documento 00000000.
func TestBuild_ClientesVarios(t *testing.T) {
	op := testOperation("03")
	op.Serial = "B001"
	op.Customer = nil
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: op,
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.Contains(t, xml, `<cbc:ID schemeID="0"`)
	assert.Contains(t, xml, ">00000000</cbc:ID>")
	assert.Contains(t, xml, "<cbc:RegistrationName>CLIENTES VARIOS</cbc:RegistrationName>")
}

// TestBuild_NotaCredito la nota de crédito usa raíz CreditNote, referencia el
// comprobante afectado y no lleva InvoiceTypeCode.
func TestBuild_NotaCredito(t *testing.T) {
	op := testOperation("07")
	op.Serial = "FC01"
	op.ParentSerial = "F001"
	op.ParentNumber = 120
	op.ParentDocumentCode = "01"
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: op,
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.Contains(t, xml, `<CreditNote`)
	assert.Contains(t, xml, `xmlns="urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"`)
	assert.NotContains(t, xml, "cbc:InvoiceTypeCode")

	assert.Contains(t, xml, "<cbc:ReferenceID>F001-120</cbc:ReferenceID>")
	assert.Contains(t, xml, "ANULACION DE LA OPERACION")
	assert.Contains(t, xml, "<cac:BillingReference>")
	assert.Contains(t, xml, "<cbc:DocumentTypeCode>01</cbc:DocumentTypeCode>")

	assert.Contains(t, xml, "<cac:CreditNoteLine>")
	assert.Contains(t, xml, `<cbc:CreditedQuantity unitCode="NIU">`)
	assert.NotContains(t, xml, "cac:InvoiceLine")
}

// TestBuild_PagoContado sin cuotas de crédito se emite un solo bloque Contado.
func TestBuild_PagoContado(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})
	assert.Contains(t, xml, "<cbc:PaymentMeansID>Contado</cbc:PaymentMeansID>")
	assert.NotContains(t, xml, "Cuota001")
}

// TestBuild_PagoCredito con cuotas se emite el total financiado más un bloque
// por cuota; las cuotas sin monto se reparten en partes iguales.
func TestBuild_PagoCredito(t *testing.T) {
	op := testOperation("01")
	payments := []entity.Payment{
		{ID: 1, OperationID: 10, PaymentType: "CR", IsEnabled: true,
			PaymentDate: time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)},
		{ID: 2, OperationID: 10, PaymentType: "CR", IsEnabled: true,
			PaymentDate: time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)},
	}
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: op,
		Company:   testCompany(),
		Details:   testDetails(),
		Payments:  payments,
	})

	assert.Contains(t, xml, "<cbc:PaymentMeansID>Credito</cbc:PaymentMeansID>")
	assert.Contains(t, xml, "<cbc:PaymentMeansID>Cuota001</cbc:PaymentMeansID>")
	assert.Contains(t, xml, "<cbc:PaymentMeansID>Cuota002</cbc:PaymentMeansID>")
	// 118 repartido entre dos cuotas sin monto registrado.
	assert.Contains(t, xml, `<cbc:Amount currencyID="PEN">59.00</cbc:Amount>`)
	assert.Contains(t, xml, "<cbc:PaymentDueDate>2026-04-15</cbc:PaymentDueDate>")
}

// TestBuild_Lineas la línea lleva el precio con IGV en PricingReference y el
// valor unitario sin IGV en cac:Price.
func TestBuild_Lineas(t *testing.T) {
	xml := buildXML(t, &sunat.DocumentBuildContext{
		Operation: testOperation("01"),
		Company:   testCompany(),
		Details:   testDetails(),
	})

	assert.Contains(t, xml, `<cbc:InvoicedQuantity unitCode="NIU">2.00</cbc:InvoicedQuantity>`)
	// 25 * 1.18 = 29.50 con IGV
	assert.Contains(t, xml, `<cbc:PriceAmount currencyID="PEN">29.50</cbc:PriceAmount>`)
	assert.Contains(t, xml, `<cbc:PriceAmount currencyID="PEN">25.00</cbc:PriceAmount>`)
	assert.Contains(t, xml, "<cbc:TaxExemptionReasonCode>10</cbc:TaxExemptionReasonCode>")
	assert.Contains(t, xml, "<cbc:ID>P0001</cbc:ID>")
}

// TestBuild_Validaciones contextos incompletos deben fallar con BuildError
// antes de producir un XML a medias.
func TestBuild_Validaciones(t *testing.T) {
	svc := sunat.NewXMLBuilderService()

	cases := []struct {
		name string
		ctx  *sunat.DocumentBuildContext
	}{
		{"contexto nulo", nil},
		{"sin operación", &sunat.DocumentBuildContext{Company: testCompany(), Details: testDetails()}},
		{"sin detalles", &sunat.DocumentBuildContext{Operation: testOperation("01"), Company: testCompany()}},
		{"sin ruc", func() *sunat.DocumentBuildContext {
			c := testCompany()
			c.RUC = ""
			return &sunat.DocumentBuildContext{Operation: testOperation("01"), Company: c, Details: testDetails()}
		}()},
		{"sin serie", func() *sunat.DocumentBuildContext {
			op := testOperation("01")
			op.Serial = ""
			return &sunat.DocumentBuildContext{Operation: op, Company: testCompany(), Details: testDetails()}
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Build(tc.ctx)
			require.Error(t, err)
			var buildErr *billing.BuildError
			assert.ErrorAs(t, err, &buildErr)
		})
	}
}
