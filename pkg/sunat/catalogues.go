// Package sunat contiene catálogos y códigos alineados a los anexos de
// comprobantes de pago electrónicos SUNAT (Perú).
package sunat

// =============================================================================
// Catálogo 01 - Tipos de documento (comprobantes de pago)
// =============================================================================

const (
	DocTypeFactura     = "01" // Factura
	DocTypeBoleta      = "03" // Boleta de venta
	DocTypeNotaCredito = "07" // Nota de crédito
	DocTypeNotaDebito  = "08" // Nota de débito
)

// DocumentTypeNames nombres legibles por código de documento.
var DocumentTypeNames = map[string]string{
	DocTypeFactura:     "FACTURA",
	DocTypeBoleta:      "BOLETA",
	DocTypeNotaCredito: "NOTA DE CREDITO",
	DocTypeNotaDebito:  "NOTA DE DEBITO",
}

// IsVoidedCommunicationType indica si la anulación del documento va por
// Comunicación de Baja (facturas y notas). Las boletas van por Resumen Diario.
func IsVoidedCommunicationType(docCode string) bool {
	switch docCode {
	case DocTypeFactura, DocTypeNotaCredito, DocTypeNotaDebito:
		return true
	}
	return false
}

// =============================================================================
// Catálogo 05 - Códigos de tributos
// =============================================================================

const (
	TaxSchemeIGV = "1000" // IGV - Impuesto General a las Ventas
	TaxSchemeEXO = "9997" // EXO - Exonerado
	TaxSchemeINA = "9998" // INA - Inafecto
	TaxSchemeGRA = "9996" // GRA - Gratuito
	TaxSchemeEXP = "9995" // EXP - Exportación
)

// TaxScheme describe un tributo del catálogo 05.
type TaxScheme struct {
	Code          string // ID del esquema (catálogo 05)
	Name          string // Nombre corto (IGV, EXO, ...)
	International string // Código internacional (VAT, FRE)
}

// TaxSchemesByAffectation mapea el tipo de afectación (catálogo 07) al tributo.
var TaxSchemesByAffectation = map[string]TaxScheme{
	"10": {Code: TaxSchemeIGV, Name: "IGV", International: "VAT"},
	"20": {Code: TaxSchemeEXO, Name: "EXO", International: "VAT"},
	"30": {Code: TaxSchemeINA, Name: "INA", International: "FRE"},
	"11": {Code: TaxSchemeGRA, Name: "GRA", International: "FRE"},
	"40": {Code: TaxSchemeEXP, Name: "EXP", International: "FRE"},
}

// =============================================================================
// Catálogo 06 - Tipos de documento de identidad
// =============================================================================

const (
	IdentityNone = "0" // Sin documento (clientes varios)
	IdentityDNI  = "1" // DNI
	IdentityRUC  = "6" // RUC
)

// Identidad por defecto para ventas sin cliente asociado. SUNAT exige un
// adquirente incluso en operaciones anónimas.
const (
	DefaultCustomerDocument = "00000000"
	DefaultCustomerName     = "CLIENTES VARIOS"
)

// IdentityTypeFor infiere el tipo de documento de identidad por su longitud:
// 8 dígitos es DNI, 11 es RUC; cualquier otro caso queda sin documento.
func IdentityTypeFor(document string) string {
	switch len(document) {
	case 8:
		return IdentityDNI
	case 11:
		return IdentityRUC
	}
	return IdentityNone
}

// =============================================================================
// Catálogo 09 - Motivos de anulación (notas de crédito / bajas)
// =============================================================================

const (
	VoidReasonOperacion   = "01" // Anulación de la operación
	VoidReasonErrorRUC    = "02" // Anulación por error en el RUC
	VoidReasonDescripcion = "03" // Anulación por error en la descripción
	VoidReasonDescuento   = "04" // Descuento global
	VoidReasonBonificacion = "05" // Bonificación
	VoidReasonDevolucionT = "06" // Devolución total
	VoidReasonDevolucionP = "07" // Devolución parcial
	VoidReasonOtros       = "08" // Otros conceptos
)

// ValidVoidReasonCodes motivos de anulación aceptados.
var ValidVoidReasonCodes = map[string]bool{
	VoidReasonOperacion: true, VoidReasonErrorRUC: true,
	VoidReasonDescripcion: true, VoidReasonDescuento: true,
	VoidReasonBonificacion: true, VoidReasonDevolucionT: true,
	VoidReasonDevolucionP: true, VoidReasonOtros: true,
}

// Condición de ítem en el Resumen Diario (catálogo 19).
const (
	SummaryConditionAdicionar = "1"
	SummaryConditionModificar = "2"
	SummaryConditionAnulado   = "3"
)

// =============================================================================
// Ambientes SUNAT
// =============================================================================

const (
	EnvBeta       = "BETA"       // Ambiente de pruebas (credenciales MODDATOS)
	EnvProduction = "PRODUCTION" // Ambiente de producción (credenciales SOL)
)

// Credenciales fijas del ambiente de pruebas.
const (
	BetaUsername = "MODDATOS"
	BetaPassword = "moddatos"
)

// =============================================================================
// Monedas y tasas
// =============================================================================

const (
	CurrencySoles   = "PEN"
	CurrencyDolares = "USD"
)

// Forma de pago en cac:PaymentTerms.
const (
	PaymentTermsContado = "Contado"
	PaymentTermsCredito = "Credito"
)

// Tipos de pago registrados en caja (finanzas).
const (
	PaymentTypeContado = "CN"
	PaymentTypeCredito = "CR"
)
