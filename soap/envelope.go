package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/DrewBradfordXYZ/sforce-go/core"
)

// Namespaces used in request envelopes.
const (
	EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	PartnerNamespace  = "urn:partner.soap.sforce.com"
	SObjectNamespace  = "urn:sobject.partner.soap.sforce.com"
)

type requestEnvelope struct {
	XMLName xml.Name      `xml:"soapenv:Envelope"`
	SoapEnv string        `xml:"xmlns:soapenv,attr"`
	URN     string        `xml:"xmlns:urn,attr"`
	URN1    string        `xml:"xmlns:urn1,attr"`
	XSI     string        `xml:"xmlns:xsi,attr"`
	Header  requestHeader `xml:"soapenv:Header"`
	Body    requestBody   `xml:"soapenv:Body"`
}

type requestHeader struct {
	Session      *sessionHeader      `xml:"urn:SessionHeader,omitempty"`
	QueryOptions *queryOptionsHeader `xml:"urn:QueryOptions,omitempty"`
}

type sessionHeader struct {
	SessionID string `xml:"urn:sessionId"`
}

type queryOptionsHeader struct {
	BatchSize int `xml:"urn:batchSize"`
}

type requestBody struct {
	Operation *Element
}

// encodeRequest renders the envelope for one operation call.
func encodeRequest(sessionID string, batchSize int, operation string, params []*Element) ([]byte, error) {
	env := requestEnvelope{
		SoapEnv: EnvelopeNamespace,
		URN:     PartnerNamespace,
		URN1:    SObjectNamespace,
		XSI:     XSINamespace,
		Body:    requestBody{Operation: NewElement("urn:"+operation, params...)},
	}
	if sessionID != "" {
		env.Header.Session = &sessionHeader{SessionID: sessionID}
	}
	if batchSize > 0 && usesQueryOptions(operation) {
		env.Header.QueryOptions = &queryOptionsHeader{BatchSize: batchSize}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", operation, err)
	}
	return buf.Bytes(), nil
}

func usesQueryOptions(operation string) bool {
	switch operation {
	case "query", "queryAll", "queryMore":
		return true
	}
	return false
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Header  *Element `xml:"Header"`
	Body    struct {
		Fault   *fault     `xml:"Fault"`
		Content []*Element `xml:",any"`
	} `xml:"Body"`
}

type fault struct {
	Code   string   `xml:"faultcode"`
	String string   `xml:"faultstring"`
	Detail *Element `xml:"detail"`
}

// Response is the decoded result of one operation call.
type Response struct {
	// Operation is the name of the operation that was called.
	Operation string

	// Body is the <operationResponse> element.
	Body *Element

	// Header is the SOAP header, carrying call metadata such as LimitInfoHeader.
	// It may be nil.
	Header *Element
}

// Result returns the first <result> child of the body.
func (r *Response) Result() *Element {
	if r == nil {
		return nil
	}
	return r.Body.Child("result")
}

// Results returns every <result> child of the body, in order.
func (r *Response) Results() []*Element {
	if r == nil {
		return nil
	}
	return r.Body.ChildrenNamed("result")
}

// LimitInfo is one entry of the LimitInfoHeader.
type LimitInfo struct {
	Type    string
	Current int
	Limit   int
}

// Usage returns Current/Limit, or 0 when the limit is unknown.
func (l LimitInfo) Usage() float64 {
	if l.Limit <= 0 {
		return 0
	}
	return float64(l.Current) / float64(l.Limit)
}

// Limits decodes the LimitInfoHeader, if the service sent one.
func (r *Response) Limits() []LimitInfo {
	if r == nil {
		return nil
	}
	var out []LimitInfo
	for _, info := range r.Header.Child("LimitInfoHeader").ChildrenNamed("limitInfo") {
		current, _ := strconv.Atoi(info.ChildText("current"))
		limit, _ := strconv.Atoi(info.ChildText("limit"))
		out = append(out, LimitInfo{
			Type:    info.ChildText("type"),
			Current: current,
			Limit:   limit,
		})
	}
	return out
}

// decodeResponse parses a response envelope. A SOAP fault is returned as
// *core.FaultError.
func decodeResponse(operation string, data []byte) (*Response, error) {
	var env responseEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", operation, err)
	}

	if f := env.Body.Fault; f != nil {
		exceptionCode := ""
		if f.Detail != nil {
			for _, d := range f.Detail.Children {
				if code := d.ChildText("exceptionCode"); code != "" {
					exceptionCode = code
					break
				}
			}
		}
		return nil, core.NewFaultError(operation, f.Code, f.String, exceptionCode)
	}

	var body *Element
	for _, c := range env.Body.Content {
		if c.Name() == operation+"Response" {
			body = c
			break
		}
	}
	if body == nil {
		return nil, core.NewMalformedResponseError(operation, "missing "+operation+"Response element")
	}

	return &Response{Operation: operation, Body: body, Header: env.Header}, nil
}
