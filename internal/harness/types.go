package harness

// StepEvent records one executed step.
type StepEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"` // document path the step edited
	Changed bool   `json:"changed"`          // the export changed
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a script execution.
type Result struct {
	// Pass indicates overall success: every step did what it expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Steps contains the executed steps in order.
	Steps []StepEvent `json:"steps"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Export is the final export of the session.
	Export string `json:"export"`

	// ListenerCalls counts change listener invocations.
	ListenerCalls int `json:"listener_calls"`

	// LoadErrorCode is the code of the last failed load step, if any.
	LoadErrorCode string `json:"load_error_code,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep records an executed step.
func (r *Result) AddStep(ev StepEvent) {
	r.Steps = append(r.Steps, ev)
}
