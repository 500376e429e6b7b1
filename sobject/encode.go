package sobject

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

// Element names used when preparing outgoing records.
const (
	elemSObjects     = "urn:sObjects"
	elemType         = "urn1:type"
	elemFieldsToNull = "urn1:fieldsToNull"
	elemID           = "urn1:Id"
)

// Prepare converts records into <sObjects> request parameters, in order.
//
// Each record must carry a type. Fields set to nil are sent as fieldsToNull
// entries so the service clears them. Parent relationship values (a Record)
// become nested elements; child relationship values ([]Record) cannot be
// written and are rejected. String values are sent in Unicode NFC form.
func Prepare(records []Record) ([]*soap.Element, error) {
	out := make([]*soap.Element, 0, len(records))
	for i, rec := range records {
		el, err := prepare(rec, elemSObjects, true)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, el)
	}
	return out, nil
}

func prepare(rec Record, name string, top bool) (*soap.Element, error) {
	if rec == nil {
		return nil, core.NewUsageError("prepare", "record is nil")
	}
	if top && rec.Type() == "" {
		return nil, core.NewUsageError("prepare", "record has no type")
	}

	el := soap.NewElement(name)
	var nulls []string
	for _, key := range sortedKeys(rec) {
		v := rec[key]
		switch key {
		case FieldType:
			if t := rec.Type(); t != "" {
				el.Children = append(el.Children, text(elemType, t))
			}
			continue
		case FieldID:
			if id := rec.ID(); id != "" {
				el.Children = append(el.Children, text(elemID, id))
			}
			continue
		}

		switch v := v.(type) {
		case nil:
			if top {
				nulls = append(nulls, key)
			}
		case Record:
			child, err := prepare(v, key, false)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			el.Children = append(el.Children, child)
		case []Record:
			return nil, core.NewUsageError("prepare", "field "+key+" is a child relationship and cannot be written")
		case []string:
			for _, s := range v {
				el.Children = append(el.Children, text(key, s))
			}
		default:
			s, ok := formatScalar(v)
			if !ok {
				return nil, core.NewUsageError("prepare", fmt.Sprintf("field %s has unsupported type %T", key, v))
			}
			el.Children = append(el.Children, text(key, s))
		}
	}

	if len(nulls) > 0 {
		// fieldsToNull precedes Id and the data fields.
		head := 0
		if len(el.Children) > 0 && el.Children[0].XMLName.Local == elemType {
			head = 1
		}
		nullEls := make([]*soap.Element, len(nulls))
		for i, n := range nulls {
			nullEls[i] = text(elemFieldsToNull, n)
		}
		el.Children = append(el.Children[:head], append(nullEls, el.Children[head:]...)...)
	}
	return el, nil
}

func text(name, value string) *soap.Element {
	return &soap.Element{XMLName: xml.Name{Local: name}, Text: norm.NFC.String(value)}
}

// formatScalar renders a leaf value in its xsd lexical form.
func formatScalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case time.Time:
		return core.FormatDateTime(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}
