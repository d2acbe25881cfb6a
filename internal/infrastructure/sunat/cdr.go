package sunat

import (
	"fmt"

	"github.com/beevik/etree"
)

// ParseCDR abre el ZIP del CDR (constancia de recepción) y extrae el código
// y la descripción de respuesta del ApplicationResponse que contiene.
// El código "0" es aceptado; la familia "0xxx" aceptado con observaciones;
// cualquier otro valor es un rechazo.
func ParseCDR(cdrZip []byte) (code, description string, err error) {
	xmlContent, err := ExtractZipXML(cdrZip)
	if err != nil {
		return "", "", fmt.Errorf("CDR: %w", err)
	}
	return parseApplicationResponse(xmlContent)
}

func parseApplicationResponse(xmlContent []byte) (code, description string, err error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(xmlContent); err != nil {
		return "", "", fmt.Errorf("ApplicationResponse ilegible: %w", err)
	}

	// El código vive en DocumentResponse/Response; se busca por nombre local
	// porque los prefijos de namespace varían entre ambientes.
	codeEl := doc.FindElement("//DocumentResponse/Response/ResponseCode")
	if codeEl == nil {
		codeEl = doc.FindElement("//ResponseCode")
	}
	if codeEl == nil {
		return "", "", fmt.Errorf("el CDR no contiene ResponseCode")
	}

	descEl := doc.FindElement("//DocumentResponse/Response/Description")
	if descEl == nil {
		descEl = doc.FindElement("//Description")
	}
	description = "Procesado por SUNAT"
	if descEl != nil && descEl.Text() != "" {
		description = descEl.Text()
	}
	return codeEl.Text(), description, nil
}
