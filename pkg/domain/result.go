package domain

// ActionResult is what an action handler hands back to the engine.
type ActionResult struct {
	Success bool
	Data    map[string]any
	Error   error
}

// Suspended reports whether the action asked the flow to wait for input.
func (r ActionResult) Suspended() bool {
	v, ok := r.Data[KeySuspended].(bool)
	return ok && v
}

// Ok builds a successful result.
func Ok(data map[string]any) ActionResult {
	return ActionResult{Success: true, Data: data}
}

// Suspend builds a successful result that halts the flow awaiting input.
func Suspend(data map[string]any) ActionResult {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[KeySuspended] = true
	return ActionResult{Success: true, Data: out}
}

// Fail builds a failed result.
func Fail(err error) ActionResult {
	return ActionResult{Success: false, Error: err}
}

// FlowStatus is the terminal state reached by one engine execution.
type FlowStatus string

const (
	FlowIdle      FlowStatus = "idle"
	FlowRunning   FlowStatus = "running"
	FlowSuspended FlowStatus = "suspended"
	FlowCompleted FlowStatus = "completed"
	FlowFailed    FlowStatus = "failed"
)

// FlowExecutionResult is the structured outcome returned across the engine boundary.
type FlowExecutionResult struct {
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	StepsExecuted int        `json:"steps_executed"`
	BlueprintID   string     `json:"blueprint_id,omitempty"`
	Status        FlowStatus `json:"status"`
	Suspended     bool       `json:"suspended,omitempty"`
}

// ScheduleResult is returned by the scheduler's Schedule entry point.
type ScheduleResult struct {
	Scheduled bool   `json:"scheduled"`
	JobID     string `json:"job_id"`
}

// CancelResult is returned by the scheduler's Cancel entry point.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// Reserved result/param keys understood by the engine. None of them is ever
// merged into collected data.
const (
	// KeyResult carries the boolean outcome of a branching action.
	KeyResult = "_result"
	// KeyNextStep lets a handler redirect the flow to an explicit step id.
	KeyNextStep = "_next_step"
	// KeyIsResuming is injected into the params of the step a flow resumes at.
	KeyIsResuming = "_is_resuming"
)
