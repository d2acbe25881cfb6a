package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// DocumentFileName arma el nombre base de los archivos de un comprobante:
// {ruc}-{tipo}-{serie}-{número}, por ejemplo 20100066603-01-F001-123.
func DocumentFileName(ruc, documentCode, serial string, number int64) string {
	return fmt.Sprintf("%s-%s-%s-%d", ruc, documentCode, serial, number)
}

// BuildZip empaqueta el XML firmado en un ZIP con el nombre que SUNAT espera
// en sendBill/sendSummary: el XML va en la raíz del archivo, sin rutas.
func BuildZip(xmlFileName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create(xmlFileName)
	if err != nil {
		return nil, fmt.Errorf("creando entrada %s en zip: %w", xmlFileName, err)
	}
	if _, err := f.Write(content); err != nil {
		return nil, fmt.Errorf("escribiendo %s en zip: %w", xmlFileName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cerrando zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractZipXML devuelve el contenido del primer .xml dentro de un ZIP.
// SUNAT entrega el CDR como un ZIP con un único R-*.xml adentro.
func ExtractZipXML(zipContent []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(zipContent), int64(len(zipContent)))
	if err != nil {
		return nil, fmt.Errorf("abriendo zip: %w", err)
	}
	for _, f := range r.File {
		if len(f.Name) < 4 || f.Name[len(f.Name)-4:] != ".xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("abriendo %s: %w", f.Name, err)
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("leyendo %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("el zip no contiene ningún archivo XML")
}
