package rules

import (
	"strconv"

	"github.com/google/uuid"

	"crmline/internal/domain"
)

// Draft is a segment rule under construction. Conditions carry local ids so
// they can be addressed while editing; the ids are stripped on submission.
type Draft struct {
	Name       string             `json:"name"`
	LogicType  domain.LogicType   `json:"logicType"`
	Conditions []domain.Condition `json:"conditions"`
}

// AddCondition appends an empty placeholder condition and returns its local
// id. The draft's validity is unaffected until the condition is filled.
func (d *Draft) AddCondition() string {
	id := uuid.NewString()
	d.Conditions = append(d.Conditions, domain.Condition{LocalID: id})
	return id
}

func (d *Draft) find(localID string) *domain.Condition {
	for i := range d.Conditions {
		if d.Conditions[i].LocalID == localID {
			return &d.Conditions[i]
		}
	}
	return nil
}

// SetField changes a condition's field. An operator that is not valid for
// the new field is reset to empty so a field/operator mismatch cannot
// persist silently.
func (d *Draft) SetField(localID, fieldID string) error {
	c := d.find(localID)
	if c == nil {
		return &domain.NotFoundError{Kind: "condition", ID: localID}
	}
	if _, ok := FieldByID(fieldID); !ok && fieldID != "" {
		return domain.Validation("unknown field %q", fieldID)
	}
	c.Field = fieldID
	if c.Operator != "" {
		f, ok := FieldByID(fieldID)
		if !ok || !operatorAllowed(f, c.Operator) {
			c.Operator = ""
		}
	}
	return nil
}

// SetOperator changes a condition's operator; it must be valid for the
// condition's current field.
func (d *Draft) SetOperator(localID, op string) error {
	c := d.find(localID)
	if c == nil {
		return &domain.NotFoundError{Kind: "condition", ID: localID}
	}
	if op != "" {
		f, ok := FieldByID(c.Field)
		if !ok {
			return domain.Validation("select a field before an operator")
		}
		if !operatorAllowed(f, op) {
			return domain.Validation("operator %q not valid for field %q", op, c.Field)
		}
	}
	c.Operator = op
	return nil
}

// SetValue changes a condition's comparison value.
func (d *Draft) SetValue(localID, value string) error {
	c := d.find(localID)
	if c == nil {
		return &domain.NotFoundError{Kind: "condition", ID: localID}
	}
	c.Value = value
	return nil
}

// RemoveCondition removes a condition by local id. Removing an absent id is
// a no-op.
func (d *Draft) RemoveCondition(localID string) {
	for i := range d.Conditions {
		if d.Conditions[i].LocalID == localID {
			d.Conditions = append(d.Conditions[:i], d.Conditions[i+1:]...)
			return
		}
	}
}

// Validate reports whether the draft is a well-formed segment rule. It is
// synchronous and has no side effects.
func (d *Draft) Validate() error {
	if d.Name == "" {
		return domain.Validation("missing rule name")
	}
	if d.LogicType != domain.LogicAnd && d.LogicType != domain.LogicOr {
		return domain.Validation("missing logic type")
	}
	if len(d.Conditions) == 0 {
		return domain.Validation("rule has no conditions")
	}
	for i, c := range d.Conditions {
		if err := validateCondition(c, i); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(c domain.Condition, index int) error {
	incomplete := func() error {
		return &domain.ValidationError{Message: "incomplete condition", Index: index}
	}
	if c.Field == "" || c.Operator == "" || c.Value == "" {
		return incomplete()
	}
	f, ok := FieldByID(c.Field)
	if !ok {
		return incomplete()
	}
	if !operatorAllowed(f, c.Operator) {
		return incomplete()
	}
	if f.Type == ValueNumber {
		if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
			return incomplete()
		}
	}
	return nil
}

// Payload returns the rule ready for submission, with local condition ids
// stripped. Condition order is preserved; duplicates are not collapsed.
func (d *Draft) Payload() domain.SegmentRule {
	conds := make([]domain.Condition, len(d.Conditions))
	for i, c := range d.Conditions {
		conds[i] = domain.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value}
	}
	return domain.SegmentRule{
		Name:       d.Name,
		LogicType:  d.LogicType,
		Conditions: conds,
	}
}

// Empty reports whether the draft holds no operator input at all.
func (d *Draft) Empty() bool {
	return d.Name == "" && d.LogicType == "" && len(d.Conditions) == 0
}
