// Package rules models segment rules: the catalog of filterable customer
// fields, a draft builder for composing conditions, and validation.
package rules

// Field identifiers available for condition building.
const (
	FieldSpend    = "spend"
	FieldVisits   = "visits"
	FieldInactive = "inactive"
	FieldLocation = "location"
	FieldOrders   = "orders"
)

// ValueType classifies a field's values.
type ValueType string

const (
	ValueNumber ValueType = "number"
	ValueText   ValueType = "text"
)

// FieldSpec describes one filterable field and the operators valid for it.
type FieldSpec struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      ValueType `json:"type"`
	Operators []string  `json:"operators"`
}

// numericOperators are operators valid for number fields, in display order.
var numericOperators = []string{">", "<", ">=", "<=", "="}

// textOperators are operators valid for text fields, in display order.
var textOperators = []string{"=", "!=", "contains"}

var catalog = []FieldSpec{
	{ID: FieldSpend, Label: "Total Spend", Type: ValueNumber, Operators: numericOperators},
	{ID: FieldVisits, Label: "Number of Visits", Type: ValueNumber, Operators: numericOperators},
	{ID: FieldInactive, Label: "Inactive for Days", Type: ValueNumber, Operators: numericOperators},
	{ID: FieldLocation, Label: "Location", Type: ValueText, Operators: textOperators},
	{ID: FieldOrders, Label: "Number of Orders", Type: ValueNumber, Operators: numericOperators},
}

// Catalog returns the full field catalog in display order.
func Catalog() []FieldSpec {
	out := make([]FieldSpec, len(catalog))
	copy(out, catalog)
	return out
}

// FieldByID looks up a field spec.
func FieldByID(id string) (FieldSpec, bool) {
	for _, f := range catalog {
		if f.ID == id {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// OperatorsFor returns the operators valid for a field, or nil for an
// unknown field.
func OperatorsFor(fieldID string) []string {
	f, ok := FieldByID(fieldID)
	if !ok {
		return nil
	}
	return f.Operators
}

func operatorAllowed(f FieldSpec, op string) bool {
	for _, o := range f.Operators {
		if o == op {
			return true
		}
	}
	return false
}
