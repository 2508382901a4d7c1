package rules_test

import (
	"errors"
	"strings"
	"testing"

	"crmline/internal/domain"
	"crmline/internal/rules"
)

func TestCatalogOperators(t *testing.T) {
	for _, f := range rules.Catalog() {
		ops := rules.OperatorsFor(f.ID)
		if len(ops) == 0 {
			t.Fatalf("field %s has no operators", f.ID)
		}
		if f.Type == rules.ValueText {
			for _, op := range []string{">", "<", ">=", "<="} {
				for _, have := range ops {
					if have == op {
						t.Fatalf("text field %s allows numeric operator %s", f.ID, op)
					}
				}
			}
		}
	}
	if rules.OperatorsFor("favorite_color") != nil {
		t.Fatalf("expected nil operators for unknown field")
	}
}

func TestDraftValid(t *testing.T) {
	d := rules.Draft{Name: "VIPs", LogicType: domain.LogicAnd}
	id := d.AddCondition()
	if err := d.SetField(id, rules.FieldSpend); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := d.SetOperator(id, ">"); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if err := d.SetValue(id, "1000"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("expected valid draft: %v", err)
	}
	payload := d.Payload()
	if payload.Name != "VIPs" || payload.LogicType != domain.LogicAnd {
		t.Fatalf("payload header mismatch: %+v", payload)
	}
	if len(payload.Conditions) != 1 || payload.Conditions[0].LocalID != "" {
		t.Fatalf("payload must strip local ids: %+v", payload.Conditions)
	}
}

func TestDraftValidationFailures(t *testing.T) {
	var d rules.Draft
	if err := d.Validate(); err == nil || !strings.Contains(err.Error(), "name") {
		t.Fatalf("expected missing name, got %v", err)
	}
	d.Name = "VIPs"
	if err := d.Validate(); err == nil || !strings.Contains(err.Error(), "logic") {
		t.Fatalf("expected missing logic type, got %v", err)
	}
	d.LogicType = domain.LogicOr
	if err := d.Validate(); err == nil || !strings.Contains(err.Error(), "conditions") {
		t.Fatalf("expected no conditions, got %v", err)
	}
}

func TestIncompleteConditionCarriesIndex(t *testing.T) {
	d := rules.Draft{Name: "VIPs", LogicType: domain.LogicAnd}
	id := d.AddCondition()
	_ = d.SetField(id, rules.FieldSpend)
	_ = d.SetOperator(id, ">")
	_ = d.SetValue(id, "1000")
	// A valid draft degrades to invalid when the value is removed, and the
	// error names the offending condition.
	if err := d.Validate(); err != nil {
		t.Fatalf("precondition: %v", err)
	}
	_ = d.SetValue(id, "")
	err := d.Validate()
	if err == nil {
		t.Fatalf("expected invalid draft")
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Index != 0 || err.Error() != "incomplete condition at index 0" {
		t.Fatalf("unexpected error: %v (index %d)", err, ve.Index)
	}
}

func TestNumericValueMustParse(t *testing.T) {
	d := rules.Draft{Name: "VIPs", LogicType: domain.LogicAnd}
	id := d.AddCondition()
	_ = d.SetField(id, rules.FieldVisits)
	_ = d.SetOperator(id, ">=")
	_ = d.SetValue(id, "many")
	if err := d.Validate(); err == nil {
		t.Fatalf("expected non-numeric value to fail validation")
	}
}

func TestOperatorResetOnFieldChange(t *testing.T) {
	d := rules.Draft{Name: "r", LogicType: domain.LogicAnd}
	id := d.AddCondition()
	_ = d.SetField(id, rules.FieldSpend)
	if err := d.SetOperator(id, ">"); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if err := d.SetField(id, rules.FieldLocation); err != nil {
		t.Fatalf("change field: %v", err)
	}
	if got := d.Conditions[0].Operator; got != "" {
		t.Fatalf("expected operator reset, got %q", got)
	}
	// contains survives only on text fields
	if err := d.SetOperator(id, "contains"); err != nil {
		t.Fatalf("contains on location: %v", err)
	}
	if err := d.SetOperator(id, ">"); err == nil {
		t.Fatalf("expected > rejected for location")
	}
}

func TestRemoveConditionIdempotent(t *testing.T) {
	d := rules.Draft{Name: "r", LogicType: domain.LogicAnd}
	id := d.AddCondition()
	d.RemoveCondition(id)
	if len(d.Conditions) != 0 {
		t.Fatalf("expected empty conditions")
	}
	d.RemoveCondition(id)
	if len(d.Conditions) != 0 {
		t.Fatalf("second removal must be a no-op")
	}
}
