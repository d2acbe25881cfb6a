package sunat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witalo/inova/internal/infrastructure/sunat"
)

func TestDocumentFileName(t *testing.T) {
	assert.Equal(t, "20601234567-01-F001-123",
		sunat.DocumentFileName("20601234567", "01", "F001", 123))
}

// TestBuildZip_Extract el ZIP generado debe poder abrirse y devolver el XML
// intacto (es lo que SUNAT hace del otro lado).
func TestBuildZip_Extract(t *testing.T) {
	content := []byte(`<?xml version="1.0"?><Invoice/>`)
	zipBytes, err := sunat.BuildZip("20601234567-01-F001-123.xml", content)
	require.NoError(t, err)

	extracted, err := sunat.ExtractZipXML(zipBytes)
	require.NoError(t, err)
	assert.Equal(t, content, extracted)
}

func TestExtractZipXML_SinXML(t *testing.T) {
	zipBytes, err := sunat.BuildZip("nota.txt", []byte("sin xml"))
	require.NoError(t, err)

	_, err = sunat.ExtractZipXML(zipBytes)
	require.Error(t, err)
}

func TestExtractZipXML_ZipCorrupto(t *testing.T) {
	_, err := sunat.ExtractZipXML([]byte("esto no es un zip"))
	require.Error(t, err)
}

// TestParseCDR extrae código y descripción del ApplicationResponse dentro
// del ZIP de constancia.
func TestParseCDR(t *testing.T) {
	cdrXML := `<?xml version="1.0" encoding="ISO-8859-1"?>
<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"
  xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
  xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cac:DocumentResponse>
    <cac:Response>
      <cbc:ResponseCode>0</cbc:ResponseCode>
      <cbc:Description>La Factura numero F001-123, ha sido aceptada</cbc:Description>
    </cac:Response>
  </cac:DocumentResponse>
</ar:ApplicationResponse>`
	zipBytes, err := sunat.BuildZip("R-20601234567-01-F001-123.xml", []byte(cdrXML))
	require.NoError(t, err)

	code, desc, err := sunat.ParseCDR(zipBytes)
	require.NoError(t, err)
	assert.Equal(t, "0", code)
	assert.Equal(t, "La Factura numero F001-123, ha sido aceptada", desc)
}

// TestParseCDR_SinResponseCode un CDR sin código de respuesta es un error;
// nunca se asume aceptación.
func TestParseCDR_SinResponseCode(t *testing.T) {
	zipBytes, err := sunat.BuildZip("R-x.xml", []byte(`<?xml version="1.0"?><Vacio/>`))
	require.NoError(t, err)

	_, _, err = sunat.ParseCDR(zipBytes)
	require.Error(t, err)
}
