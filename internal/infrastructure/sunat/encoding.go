package sunat

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// xmlDeclaration es la declaración que SUNAT espera en todos los
// documentos electrónicos.
const xmlDeclaration = `<?xml version="1.0" encoding="ISO-8859-1" standalone="no"?>` + "\n"

// encodeLatin1 convierte bytes UTF-8 a ISO-8859-1. Los caracteres fuera
// del rango de la página de códigos producen error en lugar de perderse
// en silencio.
func encodeLatin1(src []byte) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewEncoder(), src)
	if err != nil {
		return nil, fmt.Errorf("codificación ISO-8859-1: %w", err)
	}
	return out, nil
}

// decodeLatin1 convierte bytes ISO-8859-1 a UTF-8.
func decodeLatin1(src []byte) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), src)
	if err != nil {
		return nil, fmt.Errorf("decodificación ISO-8859-1: %w", err)
	}
	return out, nil
}

// charsetReader permite que encoding/xml lea documentos declarados como
// ISO-8859-1.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1", "":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "utf-8":
		return input, nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", charset)
	}
}

// stripDeclaration retira la declaración XML inicial si existe.
func stripDeclaration(doc []byte) []byte {
	trimmed := bytes.TrimLeft(doc, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		if idx := bytes.Index(trimmed, []byte("?>")); idx >= 0 {
			return bytes.TrimLeft(trimmed[idx+2:], " \t\r\n")
		}
	}
	return trimmed
}
