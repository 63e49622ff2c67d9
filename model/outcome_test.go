package model

import (
	"encoding/json"
	"testing"
)

func TestOutcome_HasErrors(t *testing.T) {
	o := NewOutcome()
	if o.HasErrors() {
		t.Error("fresh Outcome should have no errors")
	}

	o.General("something went wrong")
	if !o.HasErrors() {
		t.Error("Outcome with a general error should report HasErrors")
	}

	o = NewOutcome()
	o.Field("email", "invalid email format")
	if !o.HasErrors() {
		t.Error("Outcome with a field error should report HasErrors")
	}
}

func TestOutcome_FieldOverwrites(t *testing.T) {
	o := NewOutcome()
	o.Field("username", "required")
	o.Field("username", "only use letters, numbers, '-', '_'")
	if got := o.Errfor["username"]; got != "only use letters, numbers, '-', '_'" {
		t.Errorf("Errfor[username] = %q, want the later message", got)
	}
}

func TestOutcome_PutGet(t *testing.T) {
	o := NewOutcome()
	o.Put("user", map[string]any{"id": "u-1"})
	if o.Get("user") == nil {
		t.Error("Get(user) should return the stored payload")
	}
	if o.Get("missing") != nil {
		t.Error("Get of an unset key should return nil")
	}
}

func TestOutcome_MarshalJSON(t *testing.T) {
	o := NewOutcome()
	o.Put("user", map[string]any{"id": "u-1"})
	o.Field("email", "invalid email format")

	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if _, ok := got["user"]; !ok {
		t.Error("payload key user should appear at the top level")
	}
	if _, ok := got["errfor"].(map[string]any); !ok {
		t.Error("errfor should render as an object")
	}
	if errs, ok := got["errors"].([]any); !ok || len(errs) != 0 {
		t.Errorf("errors should render as an empty array, got %v", got["errors"])
	}
}

func TestOutcome_MarshalJSON_NilErrorsRenderAsEmptyArray(t *testing.T) {
	raw, err := json.Marshal(NewOutcome())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["errors"] == nil {
		t.Error("errors should never render as null")
	}
}
