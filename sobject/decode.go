package sobject

import (
	"strconv"
	"strings"

	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

// Class tags the service puts on structured values.
const (
	TagSObject     = "sObject"
	TagQueryResult = "QueryResult"
)

// Classify decides whether el is a scalar, a nested record or a nested query
// result.
//
// The xsi:type class tag is authoritative when it names one of the two
// structured classes. Untagged elements are classified by shape: leaves and
// xsi:nil elements are scalars, elements carrying both done and size children
// are query results, and any other element with children is a record.
func Classify(el *soap.Element) Kind {
	switch el.XSIType() {
	case TagQueryResult:
		return KindQueryResult
	case TagSObject:
		return KindRecord
	}
	if el.IsNil() || el.IsLeaf() {
		return KindScalar
	}
	if el.Child("done") != nil && el.Child("size") != nil {
		return KindQueryResult
	}
	return KindRecord
}

// DecodeValue decodes a single element into a RawValue.
func DecodeValue(el *soap.Element) RawValue {
	switch Classify(el) {
	case KindQueryResult:
		return RawValue{Kind: KindQueryResult, QueryResult: decodeNestedQueryResult(el)}
	case KindRecord:
		return RawValue{Kind: KindRecord, Record: DecodeRecord(el)}
	default:
		return RawValue{Kind: KindScalar, Scalars: []Scalar{scalar(el)}}
	}
}

// DecodeRecord decodes an sObject element. Consecutive leaf elements with the
// same name are grouped into one field holding several scalars.
func DecodeRecord(el *soap.Element) *RawRecord {
	if el == nil || el.IsNil() {
		return nil
	}
	rec := &RawRecord{Tag: el.XSIType(), Fields: make([]RawField, 0, len(el.Children))}
	for _, child := range el.Children {
		name := child.Name()
		v := DecodeValue(child)

		if n := len(rec.Fields); n > 0 && v.Kind == KindScalar {
			last := &rec.Fields[n-1]
			if last.Name == name && last.Value.Kind == KindScalar {
				last.Value.Scalars = append(last.Value.Scalars, v.Scalars...)
				continue
			}
		}
		rec.Fields = append(rec.Fields, RawField{Name: name, Value: v})
	}
	return rec
}

// DecodeQueryResult decodes the <result> of a query, queryAll or queryMore
// response. A result without a done flag is reported as
// *core.MalformedResponseError.
func DecodeQueryResult(resp *soap.Response) (*RawQueryResult, error) {
	op := ""
	if resp != nil {
		op = resp.Operation
	}
	el := resp.Result()
	if el == nil {
		return nil, core.NewMalformedResponseError(op, "missing result element")
	}

	done := el.Child("done")
	if done == nil || done.IsNil() {
		return nil, core.NewMalformedResponseError(op, "query result has no done flag")
	}
	isDone, err := strconv.ParseBool(strings.TrimSpace(done.Value()))
	if err != nil {
		return nil, core.NewMalformedResponseError(op, "invalid done flag "+strconv.Quote(done.Value()))
	}

	q := decodeQueryResult(el)
	q.Done = isDone
	return q, nil
}

// decodeNestedQueryResult decodes a relationship sub-query. Nested results are
// always complete in a single response, so a missing done flag is tolerated.
func decodeNestedQueryResult(el *soap.Element) *RawQueryResult {
	q := decodeQueryResult(el)
	q.Done = strings.TrimSpace(el.ChildText("done")) != "false"
	return q
}

func decodeQueryResult(el *soap.Element) *RawQueryResult {
	q := &RawQueryResult{}
	if loc := el.Child("queryLocator"); !loc.IsNil() {
		q.Locator = strings.TrimSpace(loc.Value())
	}
	for _, r := range el.ChildrenNamed("records") {
		if rec := DecodeRecord(r); rec != nil {
			q.Records = append(q.Records, rec)
		}
	}
	size, err := strconv.Atoi(strings.TrimSpace(el.ChildText("size")))
	if err != nil {
		size = len(q.Records)
	}
	q.Size = size
	return q
}

func scalar(el *soap.Element) Scalar {
	if el.IsNil() {
		return Scalar{Nil: true}
	}
	return Scalar{Text: el.Value()}
}
