// Package sunat: interfaz para firma digital de comprobantes XML (XML-DSig envuelto).

package sunat

import "crypto/tls"

// Signer firma un comprobante XML y devuelve el XML con la firma inyectada en
// el ext:ExtensionContent reservado por el generador.
type Signer interface {
	// Sign toma el XML del comprobante (sin firma) y el certificado con llave
	// privada, y retorna el XML con el nodo ds:Signature embebido.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
