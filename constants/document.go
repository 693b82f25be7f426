package constants

import "strings"

// DocumentType selects the field set and prompts.
type DocumentType string

const (
	DocumentPayslip  DocumentType = "payslip"
	DocumentProperty DocumentType = "property"
)

// Field names.
const (
	FieldEmployeeName  = "employee_name"
	FieldGrossAmount   = "gross_amount"
	FieldNetAmount     = "net_amount"
	FieldLivingSpace   = "living_space"
	FieldPurchasePrice = "purchase_price"
)

// Sentinel values denote "field not confidently found".
const (
	SentinelUnknown  = "unknown"
	SentinelZero     = "0"
	SentinelNotFound = "nicht gefunden"
)

// FieldKind decides how a value is normalized and compared.
type FieldKind int

const (
	KindText FieldKind = iota
	KindAmount
	KindMeasure
)

type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Sentinel string
}

var documentFields = map[DocumentType][]FieldSpec{
	DocumentPayslip: {
		{Name: FieldEmployeeName, Kind: KindText, Sentinel: SentinelUnknown},
		{Name: FieldGrossAmount, Kind: KindAmount, Sentinel: SentinelZero},
		{Name: FieldNetAmount, Kind: KindAmount, Sentinel: SentinelZero},
	},
	DocumentProperty: {
		{Name: FieldLivingSpace, Kind: KindMeasure, Sentinel: SentinelNotFound},
		{Name: FieldPurchasePrice, Kind: KindAmount, Sentinel: SentinelNotFound},
	},
}

// ParseDocumentType canonicalizes user input; unknown yields payslip.
func ParseDocumentType(input string) (DocumentType, bool) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(input))) {
	case DocumentPayslip:
		return DocumentPayslip, true
	case DocumentProperty:
		return DocumentProperty, true
	}
	return DocumentPayslip, false
}

// Fields returns the declared fields of a document type in output order.
func (d DocumentType) Fields() []FieldSpec {
	specs := documentFields[d]
	if specs == nil {
		specs = documentFields[DocumentPayslip]
	}
	out := make([]FieldSpec, len(specs))
	copy(out, specs)
	return out
}

// Field looks up one declared field.
func (d DocumentType) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields() {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// IsSentinel reports whether value is empty or a known sentinel for the field.
func (f FieldSpec) IsSentinel(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, f.Sentinel) ||
		strings.EqualFold(v, SentinelUnknown) || strings.EqualFold(v, SentinelNotFound) {
		return true
	}
	if f.Kind == KindText {
		return false
	}
	switch v {
	case "0", "0.0", "0.00", "0,0", "0,00":
		return true
	}
	return false
}
