package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/pkg/config"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

const (
	soapNS     = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSSer  = "http://service.sunat.gob.pe"
	soapNSWsse = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
)

// Transport define el puerto de salida hacia el servicio billService de
// SUNAT. La implementación concreta usa SOAP 1.1; para tests se inyecta
// un doble.
type Transport interface {
	// SendBill envía el ZIP de un comprobante y retorna el CDR (síncrono).
	SendBill(ctx context.Context, company *entity.Company, filename string, zipContent []byte) (*SubmitResult, error)
	// SendSummary envía el ZIP de una baja o resumen y retorna un ticket (asíncrono).
	SendSummary(ctx context.Context, company *entity.Company, filename string, zipContent []byte) (*TicketResult, error)
	// GetStatus consulta el estado de un ticket emitido por SendSummary.
	GetStatus(ctx context.Context, company *entity.Company, ticket string) (*PollResult, error)
}

// ResponseRecorder recibe la respuesta cruda de cada llamada SOAP para
// archivarla. Es opcional y nunca interfiere con la llamada.
type ResponseRecorder func(company *entity.Company, op string, raw []byte)

// SOAPClient implementa Transport contra el billService de SUNAT.
type SOAPClient struct {
	httpClient    *http.Client
	betaURL       string
	productionURL string
	recorder      ResponseRecorder
}

// NewSOAPClient construye el cliente con el timeout configurado; SUNAT
// puede tardar varios segundos en responder un sendBill.
func NewSOAPClient(cfg config.SUNATConfig) *SOAPClient {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SOAPClient{
		httpClient:    &http.Client{Timeout: timeout},
		betaURL:       cfg.BetaURL,
		productionURL: cfg.ProductionURL,
	}
}

// SetRecorder registra el archivador de respuestas crudas (post-mortem de
// rechazos y faults).
func (c *SOAPClient) SetRecorder(rec ResponseRecorder) {
	c.recorder = rec
}

// ── Estructuras SOAP de petición ──────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soapenv:Envelope"`
	XmlnsEnv  string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer  string     `xml:"xmlns:ser,attr"`
	XmlnsWsse string     `xml:"xmlns:wsse,attr"`
	Header    soapHeader `xml:"soapenv:Header"`
	Body      soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security soapSecurity `xml:"wsse:Security"`
}

type soapSecurity struct {
	Token usernameToken `xml:"wsse:UsernameToken"`
}

type usernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type sendSummaryBody struct {
	XMLName     xml.Name `xml:"ser:sendSummary"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

// ── Estructuras SOAP de respuesta ─────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBill    *sendBillResponse    `xml:"sendBillResponse"`
	SendSummary *sendSummaryResponse `xml:"sendSummaryResponse"`
	GetStatus   *getStatusResponse   `xml:"getStatusResponse"`
	Fault       *soapFault           `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"` // CDR ZIP en Base64
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status statusResult `xml:"status"`
}

type statusResult struct {
	Content       string `xml:"content"` // CDR ZIP en Base64 cuando statusCode = 0
	StatusCode    string `xml:"statusCode"`
	StatusMessage string `xml:"statusMessage"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────

// SendBill entrega el comprobante y procesa el CDR de la respuesta síncrona.
func (c *SOAPClient) SendBill(ctx context.Context, company *entity.Company, filename string, zipContent []byte) (*SubmitResult, error) {
	body := &sendBillBody{
		FileName:    filename,
		ContentFile: base64.StdEncoding.EncodeToString(zipContent),
	}
	respBody, err := c.call(ctx, company, "sendBill", body)
	if err != nil {
		return nil, err
	}
	if respBody.SendBill == nil || respBody.SendBill.ApplicationResponse == "" {
		return nil, &billing.TransportError{Op: "sendBill",
			Err: fmt.Errorf("la respuesta no contiene applicationResponse")}
	}

	cdrZip, err := base64.StdEncoding.DecodeString(respBody.SendBill.ApplicationResponse)
	if err != nil {
		return nil, &billing.TransportError{Op: "sendBill",
			Err: fmt.Errorf("applicationResponse no es base64 válido: %w", err)}
	}

	code, description, err := ParseCDR(cdrZip)
	if err != nil {
		return nil, &billing.TransportError{Op: "sendBill",
			Err: fmt.Errorf("CDR ilegible: %w", err)}
	}
	return &SubmitResult{ResponseCode: code, Description: description, CDRZip: cdrZip}, nil
}

// SendSummary entrega una baja o resumen diario y retorna el ticket asignado.
func (c *SOAPClient) SendSummary(ctx context.Context, company *entity.Company, filename string, zipContent []byte) (*TicketResult, error) {
	body := &sendSummaryBody{
		FileName:    filename,
		ContentFile: base64.StdEncoding.EncodeToString(zipContent),
	}
	respBody, err := c.call(ctx, company, "sendSummary", body)
	if err != nil {
		return nil, err
	}
	if respBody.SendSummary == nil || respBody.SendSummary.Ticket == "" {
		return nil, &billing.TransportError{Op: "sendSummary",
			Err: fmt.Errorf("la respuesta no contiene ticket")}
	}
	return &TicketResult{Ticket: respBody.SendSummary.Ticket}, nil
}

// GetStatus consulta un ticket. No interpreta el código: el orquestador
// decide si reintentar (98) o resolver el estado final.
func (c *SOAPClient) GetStatus(ctx context.Context, company *entity.Company, ticket string) (*PollResult, error) {
	respBody, err := c.call(ctx, company, "getStatus", &getStatusBody{Ticket: ticket})
	if err != nil {
		return nil, err
	}
	if respBody.GetStatus == nil {
		return nil, &billing.TransportError{Op: "getStatus",
			Err: fmt.Errorf("la respuesta no contiene status")}
	}

	status := respBody.GetStatus.Status
	result := &PollResult{StatusCode: status.StatusCode, StatusMessage: status.StatusMessage}
	if status.Content != "" {
		cdrZip, err := base64.StdEncoding.DecodeString(status.Content)
		if err != nil {
			return nil, &billing.TransportError{Op: "getStatus",
				Err: fmt.Errorf("content no es base64 válido: %w", err)}
		}
		result.CDRZip = cdrZip
	}
	return result, nil
}

// call serializa el envelope, ejecuta el POST y desempaqueta la respuesta.
// Cualquier falla de red, HTTP o SOAP Fault termina en TransportError.
func (c *SOAPClient) call(ctx context.Context, company *entity.Company, op string, content interface{}) (*soapResponseBody, error) {
	username, password := c.credentials(company)
	envelope := soapEnvelope{
		XmlnsEnv:  soapNS,
		XmlnsSer:  soapNSSer,
		XmlnsWsse: soapNSWsse,
		Header: soapHeader{
			Security: soapSecurity{Token: usernameToken{Username: username, Password: password}},
		},
		Body: soapBody{Content: content},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, &billing.TransportError{Op: op, Err: fmt.Errorf("serializar envelope: %w", err)}
	}
	payload = append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(company), bytes.NewReader(payload))
	if err != nil {
		return nil, &billing.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &billing.TransportError{Op: op, Err: fmt.Errorf("timeout o cancelación: %w", ctx.Err())}
		}
		return nil, &billing.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // max 10 MB
	if err != nil {
		return nil, &billing.TransportError{Op: op, Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	if c.recorder != nil {
		c.recorder(company, op, rawBody)
	}

	var envResp soapResponseEnvelope
	if parseErr := xml.Unmarshal(rawBody, &envResp); parseErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &billing.TransportError{Op: op, HTTPStatus: resp.StatusCode,
				Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(rawBody, 500))}
		}
		return nil, &billing.TransportError{Op: op,
			Err: fmt.Errorf("respuesta SOAP ilegible: %w", parseErr)}
	}

	// SUNAT responde los faults con HTTP 500; el fault manda sobre el código.
	if envResp.Body.Fault != nil {
		return nil, &billing.TransportError{Op: op, HTTPStatus: resp.StatusCode,
			Err: fmt.Errorf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &billing.TransportError{Op: op, HTTPStatus: resp.StatusCode,
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(rawBody, 500))}
	}
	return &envResp.Body, nil
}

// credentials arma las credenciales WSSE. En BETA las credenciales son las
// genéricas MODDATOS; en producción el usuario secundario SOL de la empresa.
func (c *SOAPClient) credentials(company *entity.Company) (username, password string) {
	if company.Environment == sunatcat.EnvBeta {
		return company.RUC + sunatcat.BetaUsername, sunatcat.BetaPassword
	}
	return company.RUC + company.SunatUsername, company.SunatPassword
}

func (c *SOAPClient) endpoint(company *entity.Company) string {
	if company.Environment == sunatcat.EnvBeta {
		return c.betaURL
	}
	return c.productionURL
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
