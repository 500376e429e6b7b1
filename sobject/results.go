package sobject

import (
	"strings"

	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

// WriteResult is the outcome of writing one record (create, update, upsert,
// delete or undelete).
type WriteResult struct {
	ID      string       `json:"id,omitempty"`
	Success bool         `json:"success"`
	Created bool         `json:"created,omitempty"` // upsert only
	Errors  []WriteError `json:"errors,omitempty"`
}

// WriteError describes why a record could not be written.
type WriteError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

func (e WriteError) Error() string {
	if len(e.Fields) > 0 {
		return e.StatusCode + ": " + e.Message + " (" + strings.Join(e.Fields, ", ") + ")"
	}
	return e.StatusCode + ": " + e.Message
}

// DecodeWriteResults decodes every <result> of a write response, in order.
func DecodeWriteResults(resp *soap.Response) []WriteResult {
	results := resp.Results()
	out := make([]WriteResult, 0, len(results))
	for _, el := range results {
		out = append(out, decodeWriteResult(el))
	}
	return out
}

func decodeWriteResult(el *soap.Element) WriteResult {
	wr := WriteResult{
		Success: el.ChildText("success") == "true",
		Created: el.ChildText("created") == "true",
	}
	if id := el.Child("id"); !id.IsNil() {
		wr.ID = id.Value()
	}
	for _, e := range el.ChildrenNamed("errors") {
		we := WriteError{
			StatusCode: e.ChildText("statusCode"),
			Message:    e.ChildText("message"),
		}
		for _, f := range e.ChildrenNamed("fields") {
			we.Fields = append(we.Fields, f.Value())
		}
		wr.Errors = append(wr.Errors, we)
	}
	return wr
}
