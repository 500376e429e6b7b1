// Package sobject holds the record data model of the partner API and the
// transformations between the wire form and the caller form.
//
// Decoding classifies every element of a response into a tagged [RawValue]
// (scalar, nested record or nested query result). [Normalize] then rewrites the
// raw form into plain [Record] maps: class tags are dropped, the duplicated Id
// element the service sends is collapsed to one value, and nested query results
// always become []Record.
//
//	raw, err := sobject.DecodeQueryResult(resp)
//	records := sobject.Normalize(raw)
//	fmt.Println(records[0].Type(), records[0].ID(), records[0]["Name"])
package sobject

import (
	"slices"
	"strings"
)

// Field names with special handling.
const (
	FieldID   = "Id"
	FieldType = "type"
)

// Kind classifies a raw value.
type Kind int

const (
	KindScalar Kind = iota
	KindRecord
	KindQueryResult
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindRecord:
		return "record"
	case KindQueryResult:
		return "query result"
	default:
		return "unknown"
	}
}

// Scalar is the text of one leaf element. Nil is set for xsi:nil elements.
type Scalar struct {
	Text string
	Nil  bool
}

// RawValue is a decoded field value. Exactly one of Scalars, Record and
// QueryResult is meaningful, selected by Kind.
type RawValue struct {
	Kind Kind

	// Scalars holds one entry per element when a leaf field is repeated.
	Scalars []Scalar

	Record      *RawRecord
	QueryResult *RawQueryResult
}

// RawField is one named field of a raw record.
type RawField struct {
	Name  string
	Value RawValue
}

// RawRecord is a record as decoded from the wire, before normalization.
type RawRecord struct {
	// Tag is the class tag carried by the element (its xsi:type, e.g. "sObject").
	Tag    string
	Fields []RawField
}

// Field returns the first field with the given name.
func (r *RawRecord) Field(name string) (RawValue, bool) {
	if r == nil {
		return RawValue{}, false
	}
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return RawValue{}, false
}

// RawQueryResult is one page of a query as decoded from the wire.
type RawQueryResult struct {
	Done bool

	// Locator is the cursor for the next page. It is empty once Done is true.
	Locator string

	// Size is the total number of rows the query matched, across all pages.
	Size int

	Records []*RawRecord
}

// Record is a normalized record.
//
// Values are nil, string, Record (a parent relationship), []Record (a child
// relationship sub-query) or []string (a repeated leaf field). Records built by
// callers for writes may also hold bool, integer, float and time.Time values.
type Record map[string]any

// Type returns the record's object type, or "".
func (r Record) Type() string {
	s, _ := r[FieldType].(string)
	return s
}

// ID returns the record's id, or "".
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Raw converts a normalized record back into its raw form, so that
// Normalize(Raw(r)) reproduces r.
func (r Record) Raw() *RawRecord {
	if r == nil {
		return nil
	}
	raw := &RawRecord{}
	for _, name := range sortedKeys(r) {
		raw.Fields = append(raw.Fields, RawField{Name: name, Value: rawValue(r[name])})
	}
	return raw
}

func rawValue(v any) RawValue {
	switch v := v.(type) {
	case Record:
		return RawValue{Kind: KindRecord, Record: v.Raw()}
	case []Record:
		q := &RawQueryResult{Done: true, Size: len(v)}
		for _, rec := range v {
			q.Records = append(q.Records, rec.Raw())
		}
		return RawValue{Kind: KindQueryResult, QueryResult: q}
	case []string:
		scalars := make([]Scalar, len(v))
		for i, s := range v {
			scalars[i] = Scalar{Text: s}
		}
		return RawValue{Kind: KindScalar, Scalars: scalars}
	case nil:
		return RawValue{Kind: KindScalar, Scalars: []Scalar{{Nil: true}}}
	default:
		text, _ := formatScalar(v)
		return RawValue{Kind: KindScalar, Scalars: []Scalar{{Text: text}}}
	}
}

// sortedKeys orders type first, then Id, then the remaining names alphabetically.
func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if ra, rb := keyRank(a), keyRank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	return keys
}

func keyRank(name string) int {
	switch name {
	case FieldType:
		return 0
	case FieldID:
		return 1
	default:
		return 2
	}
}
