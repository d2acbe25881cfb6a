// Carga de certificado digital desde .p12 (PKCS#12) o par PEM.

package signer

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
)

// LoadCompanyCertificate carga el certificado de firma de la empresa según
// las rutas configuradas: .p12/.pfx con password, o par PEM separado.
// Un certificado ausente o ilegible es un error de configuración del
// emisor, no reintentable.
func LoadCompanyCertificate(company *entity.Company) (tls.Certificate, error) {
	if company.CertPath == "" {
		return tls.Certificate{}, &billing.SigningError{
			Reason: "la empresa no tiene certificado digital configurado",
		}
	}
	switch strings.ToLower(filepath.Ext(company.CertPath)) {
	case ".p12", ".pfx":
		return LoadFromP12(company.CertPath, company.CertPassword)
	default:
		return LoadFromPEM(company.CertPath, company.CertKeyPath)
	}
}

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, &billing.SigningError{Reason: "leer p12: " + err.Error()}
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, &billing.SigningError{Reason: "decodificar p12: " + err.Error()}
	}
	// pkcs12.Decode devuelve un solo certificado; para SUNAT basta la hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (separados o
// combinados en uno solo).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, &billing.SigningError{Reason: "cargar PEM: " + err.Error()}
	}
	return cert, nil
}
