// Constantes de firma XML-DSig enveloped para comprobantes SUNAT.

package signer

// Namespaces y algoritmos XMLDSig. SUNAT exige RSA-SHA1 con C14N inclusivo
// y la Reference con URI vacía (firma sobre todo el documento).
const (
	NamespaceDS = "http://www.w3.org/2000/09/xmldsig#"

	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)
