package sunat

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

// Namespaces de los documentos de anulación SUNAT.
const (
	NsVoided  = "urn:sunat:names:specification:ubl:peru:schema:xsd:VoidedDocuments-1"
	NsSummary = "urn:sunat:names:specification:ubl:peru:schema:xsd:SummaryDocuments-1"
	NsSac     = "urn:sunat:names:specification:ubl:peru:schema:xsd:SunatAggregateComponents-1"
)

// VoidedBuilderService construye los documentos de anulación: la Comunicación
// de Baja (RA) para facturas y notas, y el Resumen Diario con estado anulado
// (RC) para boletas.
type VoidedBuilderService struct{}

// NewVoidedBuilderService crea el servicio.
func NewVoidedBuilderService() *VoidedBuilderService {
	return &VoidedBuilderService{}
}

// BuildVoided genera el VoidedDocuments (RA) que comunica la baja de una
// factura, nota de crédito o nota de débito ya aceptada.
func (s *VoidedBuilderService) BuildVoided(ctx *VoidedBuildContext) ([]byte, error) {
	if err := validateVoidedContext(ctx); err != nil {
		return nil, err
	}
	op, company := ctx.Operation, ctx.Company

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "VoidedDocuments"},
		Attr: []xml.Attr{
			attr("xmlns", NsVoided),
			attr("xmlns:cac", NsCac),
			attr("xmlns:cbc", NsCbc),
			attr("xmlns:ext", NsExt),
			attr("xmlns:sac", NsSac),
			attr("xmlns:ds", NsDs),
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeSignaturePlaceholder(enc)
	writeEl(enc, "cbc:UBLVersionID", "2.0")
	writeEl(enc, "cbc:CustomizationID", "1.0")
	writeEl(enc, "cbc:ID", ctx.VoidedID("RA"))
	writeEl(enc, "cbc:ReferenceDate", ctx.ReferenceDate.Format("2006-01-02"))
	writeEl(enc, "cbc:IssueDate", ctx.IssueDate.Format("2006-01-02"))
	writeVoidedSignatureBlock(enc, company)
	writeVoidedSupplierParty(enc, company)

	startEl(enc, "sac:VoidedDocumentsLine")
	writeEl(enc, "cbc:LineID", "1")
	writeEl(enc, "cbc:DocumentTypeCode", op.DocumentCode)
	writeEl(enc, "sac:DocumentSerialID", op.Serial)
	writeEl(enc, "sac:DocumentNumberID", strconv.FormatInt(op.Number, 10))
	writeEl(enc, "sac:VoidReasonDescription", ctx.Reason)
	endEl(enc, "sac:VoidedDocumentsLine")

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

// BuildSummary genera el SummaryDocuments (RC) que anula una boleta mediante
// un resumen diario con ConditionCode 3.
func (s *VoidedBuilderService) BuildSummary(ctx *VoidedBuildContext) ([]byte, error) {
	if err := validateVoidedContext(ctx); err != nil {
		return nil, err
	}
	op, company := ctx.Operation, ctx.Company

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "SummaryDocuments"},
		Attr: []xml.Attr{
			attr("xmlns", NsSummary),
			attr("xmlns:cac", NsCac),
			attr("xmlns:cbc", NsCbc),
			attr("xmlns:ext", NsExt),
			attr("xmlns:sac", NsSac),
			attr("xmlns:ds", NsDs),
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeSignaturePlaceholder(enc)
	writeEl(enc, "cbc:UBLVersionID", "2.0")
	writeEl(enc, "cbc:CustomizationID", "1.1")
	writeEl(enc, "cbc:ID", ctx.VoidedID("RC"))
	writeEl(enc, "cbc:ReferenceDate", ctx.ReferenceDate.Format("2006-01-02"))
	writeEl(enc, "cbc:IssueDate", ctx.IssueDate.Format("2006-01-02"))
	writeVoidedSignatureBlock(enc, company)
	writeVoidedSupplierParty(enc, company)

	customerDoc := sunatcat.DefaultCustomerDocument
	customerType := sunatcat.IdentityNone
	if op.Customer != nil {
		customerDoc = op.Customer.Document
		customerType = sunatcat.IdentityTypeFor(op.Customer.Document)
		if customerType == "" {
			customerType = op.Customer.PersonType
		}
	}

	scheme := sunatcat.TaxSchemesByAffectation["10"]

	startEl(enc, "sac:SummaryDocumentsLine")
	writeEl(enc, "cbc:LineID", "1")
	writeEl(enc, "cbc:DocumentTypeCode", sunatcat.DocTypeBoleta)
	writeEl(enc, "cbc:ID", op.DocumentID())
	startEl(enc, "cac:AccountingCustomerParty")
	writeEl(enc, "cbc:CustomerAssignedAccountID", customerDoc)
	writeEl(enc, "cbc:AdditionalAccountID", customerType)
	endEl(enc, "cac:AccountingCustomerParty")
	startEl(enc, "cac:Status")
	writeEl(enc, "cbc:ConditionCode", sunatcat.SummaryConditionAnulado)
	endEl(enc, "cac:Status")
	writeAmount(enc, "sac:TotalAmount", op.TotalAmount, op.Currency)
	startEl(enc, "sac:BillingPayment")
	writeAmount(enc, "cbc:PaidAmount", op.TotalAmount, op.Currency)
	writeEl(enc, "cbc:InstructionID", "01")
	endEl(enc, "sac:BillingPayment")
	startEl(enc, "cac:TaxTotal")
	writeAmount(enc, "cbc:TaxAmount", op.IGVAmount, op.Currency)
	startEl(enc, "cac:TaxSubtotal")
	writeAmount(enc, "cbc:TaxableAmount", op.TotalTaxable, op.Currency)
	writeAmount(enc, "cbc:TaxAmount", op.IGVAmount, op.Currency)
	startEl(enc, "cac:TaxCategory")
	startEl(enc, "cac:TaxScheme")
	writeEl(enc, "cbc:ID", scheme.Code)
	writeEl(enc, "cbc:Name", scheme.Name)
	writeEl(enc, "cbc:TaxTypeCode", scheme.International)
	endEl(enc, "cac:TaxScheme")
	endEl(enc, "cac:TaxCategory")
	endEl(enc, "cac:TaxSubtotal")
	endEl(enc, "cac:TaxTotal")
	endEl(enc, "sac:SummaryDocumentsLine")

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

func validateVoidedContext(ctx *VoidedBuildContext) error {
	if ctx == nil || ctx.Operation == nil || ctx.Company == nil {
		return &billing.BuildError{Reason: "faltan operación o empresa en el contexto de baja"}
	}
	if ctx.Company.RUC == "" {
		return &billing.BuildError{Reason: "la empresa emisora no tiene RUC"}
	}
	if ctx.Correlative <= 0 {
		return &billing.BuildError{Reason: "correlativo de baja inválido"}
	}
	if ctx.Reason == "" {
		return &billing.BuildError{Reason: "la baja no tiene motivo"}
	}
	return nil
}

func writeVoidedSignatureBlock(enc *xml.Encoder, company *entity.Company) {
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

func writeVoidedSupplierParty(enc *xml.Encoder, company *entity.Company) {
	startEl(enc, "cac:AccountingSupplierParty")
	writeEl(enc, "cbc:CustomerAssignedAccountID", company.RUC)
	writeEl(enc, "cbc:AdditionalAccountID", sunatcat.IdentityRUC)
	startEl(enc, "cac:Party")
	startEl(enc, "cac:PartyLegalEntity")
	writeEl(enc, "cbc:RegistrationName", company.Denomination)
	endEl(enc, "cac:PartyLegalEntity")
	endEl(enc, "cac:Party")
	endEl(enc, "cac:AccountingSupplierParty")
}
