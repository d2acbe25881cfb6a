// Servicio de firma digital enveloped para comprobantes electrónicos SUNAT.
// Inyecta <Signature> en el primer <ext:ExtensionContent> vacío del XML.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/witalo/inova/internal/domain/billing"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

const xmlDeclaration = `<?xml version="1.0" encoding="ISO-8859-1" standalone="no"?>` + "\n"

// DigitalSignatureService implementa la firma XML-DSig enveloped que SUNAT
// exige: digest SHA-1 sobre el documento canonicalizado, firma RSA-SHA1
// sobre el SignedInfo y el certificado embebido en KeyInfo.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign implementa pkg/sunat.Signer. Firma el XML y lo retorna codificado en
// ISO-8859-1 con la firma inyectada en el primer ExtensionContent vacío.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, &billing.SigningError{Reason: "XML vacío"}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, &billing.SigningError{Reason: "el certificado debe incluir llave privada RSA"}
	}
	x509Cert, err := leafCertificate(cert)
	if err != nil {
		return nil, err
	}

	// 1) Digest SHA-1 del documento sin firma (C14N inclusivo, URI vacía).
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		canonicalDoc = xmlBytes
	}
	docDigest := sha1.Sum(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo canonicalizado y firmado con RSA-SHA1.
	signedInfoXML := buildSignedInfo(docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		canonicalSignedInfo = []byte(signedInfoXML)
	}
	signHash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, signHash[:])
	if err != nil {
		// La llave ya fue validada; un fallo aquí es transitorio.
		return nil, &billing.SigningError{Reason: "firmar SignedInfo: " + err.Error(), Retryable: true}
	}

	// 3) Signature completa con el certificado en KeyInfo.
	certB64 := base64.StdEncoding.EncodeToString(x509Cert.Raw)
	signatureXML := buildFullSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue), certB64)

	// 4) Inyectar y recodificar en ISO-8859-1.
	return injectSignature(xmlBytes, signatureXML)
}

func leafCertificate(cert tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	if len(cert.Certificate) == 0 {
		return nil, &billing.SigningError{Reason: "el certificado no tiene cadena X509"}
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, &billing.SigningError{Reason: "parsear certificado: " + err.Error()}
	}
	return parsed, nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	dec.CharsetReader = latin1Reader
	return c14n.Canonicalize(dec)
}

func latin1Reader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1", "":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "utf-8":
		return input, nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", charset)
	}
}

func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + docDigestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildFullSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `" Id="SignatureSP">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

// injectSignature coloca la firma en el primer ExtensionContent vacío y
// devuelve el documento en ISO-8859-1 con su declaración.
func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = latin1Reader
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &billing.SigningError{Reason: "parsear XML: " + err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return nil, &billing.SigningError{Reason: "documento sin raíz"}
	}

	target := findEmptyExtensionContent(root)
	if target == nil {
		return nil, &billing.SigningError{Reason: "no se encontró ext:ExtensionContent vacío para la firma"}
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, &billing.SigningError{Reason: "parsear Signature: " + err.Error()}
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		target.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, &billing.SigningError{Reason: "serializar XML firmado: " + err.Error()}
	}

	body, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), stripDeclaration(out.Bytes()))
	if err != nil {
		return nil, &billing.SigningError{Reason: "codificación ISO-8859-1: " + err.Error()}
	}
	return append([]byte(xmlDeclaration), body...), nil
}

func findEmptyExtensionContent(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if child.Tag != "UBLExtensions" {
			continue
		}
		for _, ext := range child.ChildElements() {
			if ext.Tag != "UBLExtension" {
				continue
			}
			for _, ec := range ext.ChildElements() {
				if ec.Tag == "ExtensionContent" && len(ec.ChildElements()) == 0 {
					return ec
				}
			}
		}
	}
	return nil
}

func stripDeclaration(doc []byte) []byte {
	trimmed := bytes.TrimLeft(doc, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		if idx := bytes.Index(trimmed, []byte("?>")); idx >= 0 {
			return bytes.TrimLeft(trimmed[idx+2:], "\r\n")
		}
	}
	return trimmed
}

// ExtractDigestValue devuelve el DigestValue de la Reference del documento
// firmado; se persiste como hash del comprobante.
func ExtractDigestValue(signedXML []byte) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = latin1Reader
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", fmt.Errorf("parsear XML firmado: %w", err)
	}
	el := doc.FindElement("//Signature/SignedInfo/Reference/DigestValue")
	if el == nil {
		el = doc.FindElement("//DigestValue")
	}
	if el == nil {
		return "", fmt.Errorf("el documento no contiene DigestValue")
	}
	return el.Text(), nil
}

// Verify recomputa el digest y la firma de un documento firmado con Sign.
// Usa el certificado embebido en KeyInfo.
func Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = latin1Reader
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("parsear XML firmado: %w", err)
	}

	// El bloque cac:Signature del emisor también se llama Signature; la
	// firma digital es la que vive dentro del ExtensionContent.
	sigEl := doc.FindElement("//ExtensionContent/Signature")
	if sigEl == nil {
		sigEl = doc.FindElement("//Signature")
	}
	if sigEl == nil {
		return fmt.Errorf("el documento no contiene Signature")
	}
	digestEl := sigEl.FindElement("SignedInfo/Reference/DigestValue")
	sigValEl := sigEl.FindElement("SignatureValue")
	certEl := sigEl.FindElement("KeyInfo/X509Data/X509Certificate")
	if digestEl == nil || sigValEl == nil || certEl == nil {
		return fmt.Errorf("la firma está incompleta")
	}

	// Digest del documento sin la firma.
	siEl := sigEl.FindElement("SignedInfo")
	if siEl == nil {
		return fmt.Errorf("la firma no contiene SignedInfo")
	}
	siCopy := siEl.Copy()

	parent := sigEl.Parent()
	parent.RemoveChild(sigEl)
	var unsigned bytes.Buffer
	if _, err := doc.WriteTo(&unsigned); err != nil {
		return fmt.Errorf("serializar documento sin firma: %w", err)
	}
	// etree serializa en UTF-8 pero la declaración retenida dice ISO-8859-1;
	// hay que recodificar antes de canonicalizar, igual que al firmar.
	body, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), stripDeclaration(unsigned.Bytes()))
	if err != nil {
		return fmt.Errorf("codificación ISO-8859-1: %w", err)
	}
	unsignedXML := append([]byte(xmlDeclaration), body...)
	canonicalDoc, err := canonicalizeXML(unsignedXML)
	if err != nil {
		canonicalDoc = unsignedXML
	}
	docDigest := sha1.Sum(canonicalDoc)
	if base64.StdEncoding.EncodeToString(docDigest[:]) != strings.TrimSpace(digestEl.Text()) {
		return fmt.Errorf("DigestValue no coincide con el documento")
	}

	// Firma RSA-SHA1 sobre el SignedInfo canonicalizado.
	siDoc := etree.NewDocument()
	siDoc.SetRoot(siCopy)
	siBytes, err := siDoc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serializar SignedInfo: %w", err)
	}
	canonicalSignedInfo, err := canonicalizeXML(siBytes)
	if err != nil {
		canonicalSignedInfo = siBytes
	}
	signHash := sha1.Sum(canonicalSignedInfo)

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certEl.Text()))
	if err != nil {
		return fmt.Errorf("X509Certificate no es base64 válido: %w", err)
	}
	x509Cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parsear certificado embebido: %w", err)
	}
	pub, ok := x509Cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("el certificado no tiene llave pública RSA")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValEl.Text()))
	if err != nil {
		return fmt.Errorf("SignatureValue no es base64 válido: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, signHash[:], sigBytes); err != nil {
		return fmt.Errorf("la firma no verifica: %w", err)
	}
	return nil
}

var _ sunatcat.Signer = (*DigitalSignatureService)(nil)
