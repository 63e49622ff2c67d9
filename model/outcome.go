package model

import "encoding/json"

// Outcome accumulates the result of one request pipeline: free-form errors,
// per-field errors, and whatever payload the successful steps attach. It is
// created fresh for each run, mutated only by that run's steps, and rendered
// exactly once.
//
// Outcome performs no validation of its own. The pipeline contract is that
// once HasErrors reports true, no further lookup or mutation step runs.
type Outcome struct {
	Errors  []string
	Errfor  map[string]string
	payload map[string]any
}

// NewOutcome returns an empty Outcome ready for one pipeline run.
func NewOutcome() *Outcome {
	return &Outcome{
		Errfor:  make(map[string]string),
		payload: make(map[string]any),
	}
}

// HasErrors reports whether any general or field error has been recorded.
func (o *Outcome) HasErrors() bool {
	return len(o.Errors) > 0 || len(o.Errfor) > 0
}

// General appends a cross-field validation or business error.
func (o *Outcome) General(msg string) {
	o.Errors = append(o.Errors, msg)
}

// Field records a validation error for a single input field. A later write
// for the same field overwrites the earlier one.
func (o *Outcome) Field(name, msg string) {
	o.Errfor[name] = msg
}

// Put attaches a result payload value under the given key. The keys
// "errors" and "errfor" are reserved for the error collections.
func (o *Outcome) Put(key string, value any) {
	o.payload[key] = value
}

// Get returns the payload value for key, or nil.
func (o *Outcome) Get(key string) any {
	return o.payload[key]
}

// MarshalJSON renders the Outcome as a single flat object: the error
// collections beside the payload keys, matching what the response layer
// hands to the client.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.payload)+2)
	for k, v := range o.payload {
		out[k] = v
	}
	errs := o.Errors
	if errs == nil {
		errs = []string{}
	}
	out["errors"] = errs
	out["errfor"] = o.Errfor
	return json.Marshal(out)
}
