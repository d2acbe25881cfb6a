package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

// Namespaces oficiales UBL 2.1 según el estándar SUNAT.
const (
	// Namespace por defecto para facturas y boletas (UBL Invoice)
	NsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	// Namespace por defecto para notas de crédito
	NsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	// Common Aggregate Components
	NsCac = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	// Common Basic Components
	NsCbc = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	// Extension Components
	NsExt = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"
	// Tipos de datos UN/CEFACT
	nsCcts = "urn:un:unece:uncefact:documentation:2"
	nsQdt  = "urn:oasis:names:specification:ubl:schema:xsd:QualifiedDatatypes-2"
	nsUdt  = "urn:un:unece:uncefact:data:specification:UnqualifiedDataTypesSchemaModule:2"
	nsXsi  = "http://www.w3.org/2001/XMLSchema-instance"
)

// Catálogos SUNAT referenciados desde los atributos del documento.
const (
	catalogo01 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo01"
	catalogo05 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo05"
	catalogo06 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo06"
	catalogo09 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo09"
	catalogo16 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo16"
	catalogo51 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo51"
	catalogo53 = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo53"
)

// XMLBuilderService construye el XML UBL 2.1 del comprobante (sin firma).
// La salida va codificada en ISO-8859-1 tal como la exige SUNAT.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del documento según UBL 2.1. El elemento raíz y el
// namespace por defecto dependen del tipo de comprobante: Invoice para
// facturas (01) y boletas (03), CreditNote para notas de crédito (07).
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Operation == nil || ctx.Company == nil {
		return nil, &billing.BuildError{Reason: "faltan operación o empresa en el contexto"}
	}
	op := ctx.Operation
	if op.DocumentCode == "" {
		return nil, &billing.BuildError{Reason: "la operación no tiene tipo de documento"}
	}
	if len(ctx.Details) == 0 {
		return nil, &billing.BuildError{Reason: "la operación no tiene líneas de detalle"}
	}
	if ctx.Company.RUC == "" {
		return nil, &billing.BuildError{Reason: "la empresa emisora no tiene RUC"}
	}
	if op.Serial == "" {
		return nil, &billing.BuildError{Reason: "la operación no tiene serie asignada"}
	}

	rootName, rootNs := "Invoice", NsInvoice
	if op.DocumentCode == sunatcat.DocTypeNotaCredito {
		rootName, rootNs = "CreditNote", NsCreditNote
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: rootName},
		Attr: []xml.Attr{
			attr("xmlns", rootNs),
			attr("xmlns:cac", NsCac),
			attr("xmlns:cbc", NsCbc),
			attr("xmlns:ccts", nsCcts),
			attr("xmlns:ds", NsDs),
			attr("xmlns:ext", NsExt),
			attr("xmlns:qdt", nsQdt),
			attr("xmlns:udt", nsUdt),
			attr("xmlns:xsi", nsXsi),
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// ext:UBLExtensions siempre como primer hijo: el firmador inyecta
	// ds:Signature en el primer ExtensionContent vacío.
	writeSignaturePlaceholder(enc)

	writeEl(enc, "cbc:UBLVersionID", "2.1")
	writeEl(enc, "cbc:CustomizationID", "2.0")
	writeEl(enc, "cbc:ID", op.DocumentID())
	writeEl(enc, "cbc:IssueDate", op.EmitDate.Format("2006-01-02"))
	writeEl(enc, "cbc:IssueTime", op.EmitTime)

	if op.DocumentCode == sunatcat.DocTypeNotaCredito {
		// Leyenda antes de los bloques propios de la nota de crédito.
		writeEl(enc, "cbc:Note", AmountInWords(op.TotalAmount, op.Currency),
			attr("languageLocaleID", "1000"))
		s.writeCurrencyCode(enc, op)
		s.writeDiscrepancyResponse(enc, op)
		s.writeBillingReference(enc, op)
	} else {
		writeEl(enc, "cbc:InvoiceTypeCode", op.DocumentCode,
			attr("listID", "0101"),
			attr("listAgencyName", "PE:SUNAT"),
			attr("listName", "Tipo de Documento"),
			attr("listURI", catalogo01),
			attr("name", "Tipo de Operacion"),
			attr("listSchemeURI", catalogo51))
		writeEl(enc, "cbc:Note", AmountInWords(op.TotalAmount, op.Currency),
			attr("languageLocaleID", "1000"))
		s.writeCurrencyCode(enc, op)
	}

	s.writeSignatureBlock(enc, ctx.Company)
	s.writeSupplierParty(enc, ctx.Company)
	s.writeCustomerParty(enc, op.Customer)
	s.writePaymentTerms(enc, ctx)
	s.writeAllowanceCharge(enc, ctx)
	s.writeTaxTotal(enc, ctx)
	s.writeLegalMonetaryTotal(enc, ctx)
	s.writeLines(enc, ctx, rootName == "CreditNote")

	if err := enc.EncodeToken(xml.EndElement{Name: root.Name}); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	body, err := encodeLatin1(buf.Bytes())
	if err != nil {
		return nil, &billing.BuildError{Reason: err.Error()}
	}
	return append([]byte(xmlDeclaration), body...), nil
}

// writeSignaturePlaceholder escribe ext:UBLExtensions con un único
// ExtensionContent vacío.
func writeSignaturePlaceholder(enc *xml.Encoder) {
	startEl(enc, "ext:UBLExtensions")
	startEl(enc, "ext:UBLExtension")
	startEl(enc, "ext:ExtensionContent")
	endEl(enc, "ext:ExtensionContent")
	endEl(enc, "ext:UBLExtension")
	endEl(enc, "ext:UBLExtensions")
}

func (s *XMLBuilderService) writeCurrencyCode(enc *xml.Encoder, op *entity.Operation) {
	writeEl(enc, "cbc:DocumentCurrencyCode", op.Currency,
		attr("listID", "ISO 4217 Alpha"),
		attr("listName", "Currency"),
		attr("listAgencyName", "United Nations Economic Commission for Europe"))
}

// writeDiscrepancyResponse indica el comprobante afectado y el motivo de la
// nota de crédito (catálogo 09).
func (s *XMLBuilderService) writeDiscrepancyResponse(enc *xml.Encoder, op *entity.Operation) {
	reference := op.ParentDocumentID()
	startEl(enc, "cac:DiscrepancyResponse")
	writeEl(enc, "cbc:ReferenceID", reference)
	writeEl(enc, "cbc:ResponseCode", "01", attr("listURI", catalogo09))
	writeEl(enc, "cbc:Description", "ANULACION DE LA OPERACION")
	endEl(enc, "cac:DiscrepancyResponse")
}

func (s *XMLBuilderService) writeBillingReference(enc *xml.Encoder, op *entity.Operation) {
	startEl(enc, "cac:BillingReference")
	startEl(enc, "cac:InvoiceDocumentReference")
	writeEl(enc, "cbc:ID", op.ParentDocumentID())
	writeEl(enc, "cbc:DocumentTypeCode", op.ParentDocumentCode)
	endEl(enc, "cac:InvoiceDocumentReference")
	endEl(enc, "cac:BillingReference")
}

// writeSignatureBlock escribe el bloque cac:Signature con los datos del
// emisor; referencia la firma digital que se inyectará en las extensiones.
func (s *XMLBuilderService) writeSignatureBlock(enc *xml.Encoder, company *entity.Company) {
	startEl(enc, "cac:Signature")
	writeEl(enc, "cbc:ID", company.RUC)
	startEl(enc, "cac:SignatoryParty")
	startEl(enc, "cac:PartyIdentification")
	writeEl(enc, "cbc:ID", company.RUC)
	endEl(enc, "cac:PartyIdentification")
	startEl(enc, "cac:PartyName")
	writeEl(enc, "cbc:Name", company.Denomination)
	endEl(enc, "cac:PartyName")
	endEl(enc, "cac:SignatoryParty")
	startEl(enc, "cac:DigitalSignatureAttachment")
	startEl(enc, "cac:ExternalReference")
	writeEl(enc, "cbc:URI", company.RUC)
	endEl(enc, "cac:ExternalReference")
	endEl(enc, "cac:DigitalSignatureAttachment")
	endEl(enc, "cac:Signature")
}

func (s *XMLBuilderService) writeSupplierParty(enc *xml.Encoder, company *entity.Company) {
	startEl(enc, "cac:AccountingSupplierParty")
	startEl(enc, "cac:Party")
	startEl(enc, "cac:PartyIdentification")
	writeEl(enc, "cbc:ID", company.RUC, attr("schemeID", sunatcat.IdentityRUC))
	endEl(enc, "cac:PartyIdentification")
	startEl(enc, "cac:PartyName")
	writeEl(enc, "cbc:Name", company.Denomination)
	endEl(enc, "cac:PartyName")
	startEl(enc, "cac:PartyLegalEntity")
	writeEl(enc, "cbc:RegistrationName", company.Denomination)
	startEl(enc, "cac:RegistrationAddress")
	writeEl(enc, "cbc:ID", defaultUbigeo,
		attr("schemeName", "Ubigeos"),
		attr("schemeAgencyName", "PE:INEI"))
	writeEl(enc, "cbc:AddressTypeCode", "0000",
		attr("listAgencyName", "PE:SUNAT"),
		attr("listName", "Establecimientos anexos"))
	writeEl(enc, "cbc:CityName", defaultCity)
	writeEl(enc, "cbc:CountrySubentity", defaultCity)
	writeEl(enc, "cbc:District", defaultCity)
	startEl(enc, "cac:AddressLine")
	writeEl(enc, "cbc:Line", company.Address)
	endEl(enc, "cac:AddressLine")
	startEl(enc, "cac:Country")
	writeEl(enc, "cbc:IdentificationCode", "PE",
		attr("listID", "ISO 3166-1"),
		attr("listAgencyName", "United Nations Economic Commission for Europe"),
		attr("listName", "Country"))
	endEl(enc, "cac:Country")
	endEl(enc, "cac:RegistrationAddress")
	endEl(enc, "cac:PartyLegalEntity")
	endEl(enc, "cac:Party")
	endEl(enc, "cac:AccountingSupplierParty")
}

// writeCustomerParty escribe al adquiriente. Sin cliente asociado la venta
// va a CLIENTES VARIOS con documento 00000000 (catálogo 06, tipo 0).
func (s *XMLBuilderService) writeCustomerParty(enc *xml.Encoder, person *entity.Person) {
	document := sunatcat.DefaultCustomerDocument
	name := sunatcat.DefaultCustomerName
	docType := sunatcat.IdentityNone
	if person != nil {
		document = person.Document
		name = person.FullName
		docType = sunatcat.IdentityTypeFor(person.Document)
		if docType == "" {
			docType = person.PersonType
		}
	}

	startEl(enc, "cac:AccountingCustomerParty")
	startEl(enc, "cac:Party")
	startEl(enc, "cac:PartyIdentification")
	writeEl(enc, "cbc:ID", document,
		attr("schemeID", docType),
		attr("schemeName", "Documento de Identidad"),
		attr("schemeAgencyName", "PE:SUNAT"),
		attr("schemeURI", catalogo06))
	endEl(enc, "cac:PartyIdentification")
	startEl(enc, "cac:PartyLegalEntity")
	writeEl(enc, "cbc:RegistrationName", name)
	endEl(enc, "cac:PartyLegalEntity")
	endEl(enc, "cac:Party")
	endEl(enc, "cac:AccountingCustomerParty")
}

// writePaymentTerms escribe la forma de pago. Contado emite un único bloque;
// crédito emite el total financiado más un bloque por cuota. Las cuotas sin
// monto pagado se reparten en partes iguales del total.
func (s *XMLBuilderService) writePaymentTerms(enc *xml.Encoder, ctx *DocumentBuildContext) {
	op := ctx.Operation

	var credit []entity.Payment
	for _, p := range ctx.Payments {
		if p.PaymentType == sunatcat.PaymentTypeCredito && p.IsEnabled {
			credit = append(credit, p)
		}
	}

	if len(credit) == 0 {
		startEl(enc, "cac:PaymentTerms")
		writeEl(enc, "cbc:ID", "FormaPago")
		writeEl(enc, "cbc:PaymentMeansID", sunatcat.PaymentTermsContado)
		endEl(enc, "cac:PaymentTerms")
		return
	}

	totalCredito := decimal.Zero
	for _, p := range credit {
		totalCredito = totalCredito.Add(p.PaidAmount)
	}
	if totalCredito.IsZero() {
		totalCredito = op.TotalAmount
	}

	startEl(enc, "cac:PaymentTerms")
	writeEl(enc, "cbc:ID", "FormaPago")
	writeEl(enc, "cbc:PaymentMeansID", sunatcat.PaymentTermsCredito)
	writeAmount(enc, "cbc:Amount", totalCredito, op.Currency)
	endEl(enc, "cac:PaymentTerms")

	equalShare := op.TotalAmount.Div(decimal.NewFromInt(int64(len(credit))))
	for i, p := range credit {
		amount := p.PaidAmount
		if amount.IsZero() {
			amount = equalShare
		}
		startEl(enc, "cac:PaymentTerms")
		writeEl(enc, "cbc:ID", "FormaPago")
		writeEl(enc, "cbc:PaymentMeansID", fmt.Sprintf("Cuota%03d", i+1))
		writeAmount(enc, "cbc:Amount", amount, op.Currency)
		writeEl(enc, "cbc:PaymentDueDate", p.PaymentDate.Format("2006-01-02"))
		endEl(enc, "cac:PaymentTerms")
	}
}

// writeAllowanceCharge escribe el descuento global (catálogo 53, motivo 03)
// cuando existe. El factor sale de dividir el descuento entre la base.
func (s *XMLBuilderService) writeAllowanceCharge(enc *xml.Encoder, ctx *DocumentBuildContext) {
	op := ctx.Operation
	if op.GlobalDiscount.IsZero() {
		return
	}

	base := lineExtensionTotal(ctx.Details)
	factor := decimal.Zero
	if base.IsPositive() {
		factor = op.GlobalDiscount.Div(base)
	}

	startEl(enc, "cac:AllowanceCharge")
	writeEl(enc, "cbc:ChargeIndicator", "false")
	writeEl(enc, "cbc:AllowanceChargeReasonCode", "03",
		attr("listAgencyName", "PE:SUNAT"),
		attr("listName", "Cargo/descuento"),
		attr("listURI", catalogo53))
	writeEl(enc, "cbc:MultiplierFactorNumeric", factor.StringFixed(5))
	writeAmount(enc, "cbc:Amount", op.GlobalDiscount, op.Currency)
	writeAmount(enc, "cbc:BaseAmount", base, op.Currency)
	endEl(enc, "cac:AllowanceCharge")
}

func (s *XMLBuilderService) writeTaxTotal(enc *xml.Encoder, ctx *DocumentBuildContext) {
	op := ctx.Operation

	// Con descuento global el IGV se calcula sobre la base SIN descontar
	// (suma de cantidad por valor unitario). El descuento solo rebaja el
	// PayableAmount en los totales monetarios. Comportamiento heredado del
	// sistema de origen: cualquier cambio rompe comprobantes ya declarados.
	var taxable, igv decimal.Decimal
	if op.GlobalDiscount.IsPositive() {
		taxable = lineExtensionTotal(ctx.Details)
		igv = taxable.Mul(igvRate(op))
	} else {
		taxable = op.TotalTaxable
		igv = op.IGVAmount
	}

	scheme := sunatcat.TaxSchemesByAffectation["10"]

	startEl(enc, "cac:TaxTotal")
	writeAmount(enc, "cbc:TaxAmount", igv, op.Currency)
	startEl(enc, "cac:TaxSubtotal")
	writeAmount(enc, "cbc:TaxableAmount", taxable, op.Currency)
	writeAmount(enc, "cbc:TaxAmount", igv, op.Currency)
	startEl(enc, "cac:TaxCategory")
	startEl(enc, "cac:TaxScheme")
	writeEl(enc, "cbc:ID", scheme.Code,
		attr("schemeName", "Codigo de tributos"),
		attr("schemeAgencyName", "PE:SUNAT"),
		attr("schemeURI", catalogo05))
	writeEl(enc, "cbc:Name", scheme.Name)
	writeEl(enc, "cbc:TaxTypeCode", scheme.International)
	endEl(enc, "cac:TaxScheme")
	endEl(enc, "cac:TaxCategory")
	endEl(enc, "cac:TaxSubtotal")
	endEl(enc, "cac:TaxTotal")
}

func (s *XMLBuilderService) writeLegalMonetaryTotal(enc *xml.Encoder, ctx *DocumentBuildContext) {
	op := ctx.Operation
	lineExtension := lineExtensionTotal(ctx.Details)

	var allowanceTotal, taxInclusive, payable decimal.Decimal
	if op.GlobalDiscount.IsPositive() {
		allowanceTotal = op.GlobalDiscount
		taxInclusive = lineExtension.Add(lineExtension.Mul(igvRate(op)))
		payable = taxInclusive.Sub(allowanceTotal)
	} else {
		allowanceTotal = decimal.Zero
		taxInclusive = op.TotalAmount
		payable = op.TotalAmount
	}

	startEl(enc, "cac:LegalMonetaryTotal")
	writeAmount(enc, "cbc:LineExtensionAmount", lineExtension, op.Currency)
	writeAmount(enc, "cbc:TaxInclusiveAmount", taxInclusive, op.Currency)
	writeAmount(enc, "cbc:AllowanceTotalAmount", allowanceTotal, op.Currency)
	writeAmount(enc, "cbc:ChargeTotalAmount", decimal.Zero, op.Currency)
	writeAmount(enc, "cbc:PrepaidAmount", decimal.Zero, op.Currency)
	writeAmount(enc, "cbc:PayableAmount", payable, op.Currency)
	endEl(enc, "cac:LegalMonetaryTotal")
}

// writeLines escribe las líneas de detalle. Los valores de línea van SIEMPRE
// sin aplicar el descuento global.
func (s *XMLBuilderService) writeLines(enc *xml.Encoder, ctx *DocumentBuildContext, creditNote bool) {
	op := ctx.Operation
	rate := igvRate(op)

	lineName, qtyName := "cac:InvoiceLine", "cbc:InvoicedQuantity"
	if creditNote {
		lineName, qtyName = "cac:CreditNoteLine", "cbc:CreditedQuantity"
	}

	for i, detail := range ctx.Details {
		totalValue := detail.Quantity.Mul(detail.UnitValue)
		totalIGV := totalValue.Mul(rate)
		unitPriceWithTax := detail.UnitValue.Mul(decimal.NewFromInt(1).Add(rate))

		affectation := detail.TypeAffectation
		if affectation == "" {
			affectation = "10"
		}
		scheme, ok := sunatcat.TaxSchemesByAffectation[affectation]
		if !ok {
			scheme = sunatcat.TaxSchemesByAffectation["10"]
		}

		startEl(enc, lineName)
		writeEl(enc, "cbc:ID", strconv.Itoa(i+1))
		writeEl(enc, qtyName, detail.Quantity.StringFixed(2), attr("unitCode", "NIU"))
		writeAmount(enc, "cbc:LineExtensionAmount", totalValue, op.Currency)
		startEl(enc, "cac:PricingReference")
		startEl(enc, "cac:AlternativeConditionPrice")
		writeAmount(enc, "cbc:PriceAmount", unitPriceWithTax, op.Currency)
		writeEl(enc, "cbc:PriceTypeCode", "01",
			attr("listName", "Tipo de Precio"),
			attr("listAgencyName", "PE:SUNAT"),
			attr("listURI", catalogo16))
		endEl(enc, "cac:AlternativeConditionPrice")
		endEl(enc, "cac:PricingReference")
		startEl(enc, "cac:TaxTotal")
		writeAmount(enc, "cbc:TaxAmount", totalIGV, op.Currency)
		startEl(enc, "cac:TaxSubtotal")
		writeAmount(enc, "cbc:TaxableAmount", totalValue, op.Currency)
		writeAmount(enc, "cbc:TaxAmount", totalIGV, op.Currency)
		startEl(enc, "cac:TaxCategory")
		writeEl(enc, "cbc:Percent", op.IGVPercent.StringFixed(2))
		writeEl(enc, "cbc:TaxExemptionReasonCode", affectation)
		startEl(enc, "cac:TaxScheme")
		writeEl(enc, "cbc:ID", scheme.Code)
		writeEl(enc, "cbc:Name", scheme.Name)
		writeEl(enc, "cbc:TaxTypeCode", scheme.International)
		endEl(enc, "cac:TaxScheme")
		endEl(enc, "cac:TaxCategory")
		endEl(enc, "cac:TaxSubtotal")
		endEl(enc, "cac:TaxTotal")
		startEl(enc, "cac:Item")
		writeEl(enc, "cbc:Description", detail.Description)
		startEl(enc, "cac:SellersItemIdentification")
		writeEl(enc, "cbc:ID", productCode(detail))
		endEl(enc, "cac:SellersItemIdentification")
		endEl(enc, "cac:Item")
		startEl(enc, "cac:Price")
		writeAmount(enc, "cbc:PriceAmount", detail.UnitValue, op.Currency)
		endEl(enc, "cac:Price")
		endEl(enc, lineName)
	}
}

// Ubigeo y ciudad del domicilio fiscal. El sistema de origen opera en una
// sola sede; mover esto a Company requiere migración de datos.
const (
	defaultUbigeo = "040101"
	defaultCity   = "AREQUIPA"
)

func productCode(d entity.OperationDetail) string {
	if d.ProductCode != "" {
		return d.ProductCode
	}
	return "PROD001"
}

func lineExtensionTotal(details []entity.OperationDetail) decimal.Decimal {
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.Quantity.Mul(d.UnitValue))
	}
	return total
}

func igvRate(op *entity.Operation) decimal.Decimal {
	if op.IGVPercent.IsPositive() {
		return op.IGVPercent.Div(decimal.NewFromInt(100))
	}
	return decimal.NewFromFloat(0.18)
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func attr(local, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: local}, Value: value}
}

func startEl(enc *xml.Encoder, name string, attrs ...xml.Attr) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func endEl(enc *xml.Encoder, name string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

func writeEl(enc *xml.Encoder, name, value string, attrs ...xml.Attr) {
	startEl(enc, name, attrs...)
	_ = enc.EncodeToken(xml.CharData(value))
	endEl(enc, name)
}

func writeAmount(enc *xml.Encoder, name string, d decimal.Decimal, currency string) {
	writeEl(enc, name, formatDecimal(d), attr("currencyID", currency))
}
