package dispatch

import v1 "github.com/foremanhq/foreman/pkg/api/v1"

// FallbackAgent is the universal substitute when a routed agent is busy or
// offline: the local inference worker can take any task type.
const FallbackAgent = "OLLAMA_WORKER"

func f(v float64) *float64 { return &v }

// RoutingTable is the static task_type -> target map. Availability is not
// encoded here; the dispatcher consults the live registry at decision time.
var RoutingTable = map[string]v1.RoutingRule{
	"code_complex": {
		Agent:       "CLAUDE_LUSTRO",
		Bridge:      "claude",
		Description: "Complex code tasks requiring deep understanding",
	},
	"code_simple": {
		Agent:        "OLLAMA_WORKER",
		Bridge:       "ollama",
		Model:        "dolphin-llama3:latest",
		Temperature:  f(0.3),
		SystemPrompt: "You are an expert programmer. Write clean, working code. Be concise.",
	},
	"code_feature": {
		Agent:       "CODEX",
		Bridge:      "codex",
		Description: "Complete feature implementation A-to-Z",
	},
	"architecture": {
		Agent:       "GEMINI_ARCHITECT",
		Bridge:      "gemini",
		Description: "System architecture and design decisions",
	},
	"review": {
		Agent:       "CLAUDE_LUSTRO",
		Bridge:      "claude",
		Description: "Code review, security audit",
	},
	"docs": {
		Agent:        "OLLAMA_WORKER",
		Bridge:       "ollama",
		Model:        "mistral:latest",
		Temperature:  f(0.5),
		SystemPrompt: "Write clear, structured documentation.",
	},
	"test": {
		Agent:        "OLLAMA_WORKER",
		Bridge:       "ollama",
		Model:        "dolphin-llama3:latest",
		Temperature:  f(0.3),
		SystemPrompt: "Write comprehensive tests. Cover edge cases.",
	},
	"quick": {
		Agent:        "OLLAMA_WORKER",
		Bridge:       "ollama",
		Model:        "llama3.2:latest",
		Temperature:  f(0.5),
		SystemPrompt: "Answer briefly and directly.",
	},
	"reasoning": {
		Agent:        "OLLAMA_WORKER",
		Bridge:       "ollama",
		Model:        "deepseek-r1:1.5b",
		Temperature:  f(0.4),
		SystemPrompt: "Think step by step. Analyze carefully before answering.",
	},
}

// Route returns the routing rule for a task type, defaulting to the fallback
// type's rule.
func Route(taskType string) v1.RoutingRule {
	if rule, ok := RoutingTable[taskType]; ok {
		return rule
	}
	return RoutingTable[FallbackType]
}
