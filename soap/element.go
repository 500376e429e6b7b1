package soap

import (
	"encoding/xml"
)

// XSINamespace is the XML Schema instance namespace carrying xsi:type and xsi:nil.
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// Element is a generic XML element. Responses are decoded into a tree of
// Elements, and request parameters are built from them.
//
// Names of decoded elements carry their resolved namespace in XMLName.Space;
// names of elements built for requests carry their prefix in XMLName.Local
// ("urn:queryString") and are written verbatim.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*Element `xml:",any"`
}

// Name returns the element's local name without any prefix.
func (e *Element) Name() string {
	if e == nil {
		return ""
	}
	return localName(e.XMLName.Local)
}

// Child returns the first child with the given local name, or nil.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with the given local name, in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the text of the first child with the given name, or "".
func (e *Element) ChildText(name string) string {
	return e.Child(name).Value()
}

// Value returns the text content of a leaf element. Elements with children
// have no value; their character data is layout whitespace.
func (e *Element) Value() string {
	if e == nil || len(e.Children) > 0 {
		return ""
	}
	return e.Text
}

// Attr returns the value of the attribute with the given local name.
func (e *Element) Attr(name string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attrs {
		if localName(a.Name.Local) == name {
			return a.Value
		}
	}
	return ""
}

// XSIType returns the xsi:type of the element with its prefix removed
// ("sf:sObject" becomes "sObject").
func (e *Element) XSIType() string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attrs {
		if isXSI(a.Name) && localName(a.Name.Local) == "type" {
			return localName(a.Value)
		}
	}
	return ""
}

// IsNil reports whether the element is absent or marked xsi:nil="true".
func (e *Element) IsNil() bool {
	if e == nil {
		return true
	}
	for _, a := range e.Attrs {
		if isXSI(a.Name) && localName(a.Name.Local) == "nil" {
			return a.Value == "true" || a.Value == "1"
		}
	}
	return false
}

// IsLeaf reports whether the element has no child elements.
func (e *Element) IsLeaf() bool {
	return e != nil && len(e.Children) == 0
}

// NewElement builds a request element with the given prefixed name and children.
func NewElement(name string, children ...*Element) *Element {
	return &Element{XMLName: xml.Name{Local: name}, Children: children}
}

// Field builds a request leaf element <urn:name>value</urn:name>.
func Field(name, value string) *Element {
	return &Element{XMLName: xml.Name{Local: "urn:" + name}, Text: value}
}

// Nil builds a request element marked xsi:nil="true".
func Nil(name string) *Element {
	return &Element{
		XMLName: xml.Name{Local: name},
		Attrs:   []xml.Attr{{Name: xml.Name{Local: "xsi:nil"}, Value: "true"}},
	}
}

func isXSI(name xml.Name) bool {
	return name.Space == XSINamespace || name.Space == "xsi" || name.Local == "xsi:type" || name.Local == "xsi:nil"
}

func localName(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}
