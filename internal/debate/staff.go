package debate

// StaffAgent is one debate participant: a role-framed model configuration,
// independent of the dispatch registry.
type StaffAgent struct {
	Name        string
	Role        string
	Model       string
	Temperature float64
	Perspective string
}

// DefaultStaff is the standing panel. Order is the speaking order within
// every round.
var DefaultStaff = []StaffAgent{
	{
		Name:        "STROZ_SECURITY",
		Role:        "Security Officer",
		Model:       "qwen3:8b",
		Temperature: 0.3,
		Perspective: "security, vulnerabilities, sandbox, input validation, OWASP",
	},
	{
		Name:        "INZYNIER_PERF",
		Role:        "Performance Engineer",
		Model:       "qwen2.5-coder:7b",
		Temperature: 0.4,
		Perspective: "performance, caching, observability, cost tracking, latency",
	},
	{
		Name:        "ARCHITEKT_UX",
		Role:        "UX & Frontend Architect",
		Model:       "qwen3:8b",
		Temperature: 0.5,
		Perspective: "frontend, UX, API integration, multi-modal, accessibility",
	},
	{
		Name:        "TESTER_QA",
		Role:        "QA Commander",
		Model:       "qwen2.5-coder:7b",
		Temperature: 0.3,
		Perspective: "testing, coverage, regression, e2e, CI/CD",
	},
	{
		Name:        "NAVIGATOR_RAG",
		Role:        "Knowledge Navigator",
		Model:       "deepseek-r1:8b",
		Temperature: 0.4,
		Perspective: "knowledge pipelines, embeddings, semantic search, retrieval",
	},
	{
		Name:        "KOWAL_TOOLS",
		Role:        "Tool Forge Master",
		Model:       "qwen2.5-coder:7b",
		Temperature: 0.4,
		Perspective: "tool registry, workflow engine, automation, integrations",
	},
	{
		Name:        "KRONIKARZ_DOCS",
		Role:        "Documentation Chronicler",
		Model:       "phi4-mini",
		Temperature: 0.5,
		Perspective: "documentation, prompt versioning, changelog, onboarding",
	},
}

// DefaultTopics is the standing agenda used when a session names none.
var DefaultTopics = []string{
	"Task dependencies — blocked tasks sit in the queue with no operator visibility. How should the dashboard surface them?",
	"Security — the inbox accepts any markdown drop without validation. What to harden first?",
	"Performance & Observability — no per-bridge latency tracking. How to add monitoring?",
	"Agent liveness — state logs go stale silently. Detection and alerting strategy?",
	"Test coverage — the bridge layer is under-tested against slow workers. Strategy?",
	"Routing table — nine static task types. Which new task types are priorities?",
	"Codex pipeline — results carry timestamps instead of task ids. Fix or replace?",
}

// StaffNames returns the panel member names in speaking order.
func StaffNames(staff []StaffAgent) []string {
	names := make([]string, len(staff))
	for i, a := range staff {
		names[i] = a.Name
	}
	return names
}

// SelectStaff filters the default panel to the named subset, preserving
// order. An empty request selects everyone.
func SelectStaff(names []string) []StaffAgent {
	if len(names) == 0 {
		return DefaultStaff
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	selected := make([]StaffAgent, 0, len(names))
	for _, a := range DefaultStaff {
		if wanted[a.Name] {
			selected = append(selected, a)
		}
	}
	return selected
}
