package v1

// RoutingRule maps a classified task type to a target agent and bridge.
// Model, temperature and system prompt only apply to inference-backed bridges.
type RoutingRule struct {
	Agent        string   `json:"agent"`
	Bridge       string   `json:"bridge"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// RoutingDecision is the dispatcher's answer for one task.
type RoutingDecision struct {
	TaskType     string   `json:"task_type"`
	Agent        string   `json:"agent"`
	Bridge       string   `json:"bridge"`
	Confidence   float64  `json:"confidence"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Fallback     bool     `json:"fallback,omitempty"`
	Busy         bool     `json:"busy,omitempty"`
}
