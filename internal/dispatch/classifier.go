package dispatch

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/logger"
)

// FallbackType is used when no intent pattern matches.
const FallbackType = "code_simple"

// secondOpinionTimeout bounds the optional LLM classification call.
const secondOpinionTimeout = 10 * time.Second

// intentPatterns is the ordered keyword rule list. Order matters twice: rules
// earlier in the list win score ties, and specific rules sit above the broad
// code_simple catch-all.
var intentPatterns = []struct {
	taskType string
	pattern  *regexp.Regexp
}{
	{"code_complex", regexp.MustCompile(`(?i)\b(refactor|security|audit|complex|architect|critical|bug.*fix|deep.*review)\b`)},
	{"code_feature", regexp.MustCompile(`(?i)\b(feature|endpoint.*logic.*test|full.*implementation|A.*to.*Z|from.*scratch)\b`)},
	{"code_simple", regexp.MustCompile(`(?i)\b(code|implement|function|class|script|debug|fix|program|write.*code|python|javascript|html|css|sql|api)\b`)},
	{"architecture", regexp.MustCompile(`(?i)\b(architect|design|structure|system.*design|plan|blueprint|schema)\b`)},
	{"review", regexp.MustCompile(`(?i)\b(review|check|verify|validate|inspect|assess)\b`)},
	{"reasoning", regexp.MustCompile(`(?i)\b(why|explain|reason|logic|proof|think.*step|math|calculate|solve)\b`)},
	{"docs", regexp.MustCompile(`(?i)\b(doc|documentation|readme|comment|describe|write.*doc)\b`)},
	{"test", regexp.MustCompile(`(?i)\b(test|unittest|pytest|coverage|spec|assert)\b`)},
	{"quick", regexp.MustCompile(`(?i)\b(yes or no|true or false|translate|define|what is|short|tldr|quick)\b`)},
}

// KnownTypes returns the task types in declaration order.
func KnownTypes() []string {
	out := make([]string, 0, len(intentPatterns))
	for _, p := range intentPatterns {
		out = append(out, p.taskType)
	}
	return out
}

// Classify scores the task text against the intent patterns. The type with
// the most matches wins; ties go to the first-declared type. With no match
// the fallback type is returned with zero matches.
func Classify(title, description string) (taskType string, matches int) {
	text := title + " " + description

	best, bestScore := FallbackType, 0
	for _, p := range intentPatterns {
		n := len(p.pattern.FindAllString(text, -1))
		if n > bestScore {
			best, bestScore = p.taskType, n
		}
	}
	return best, bestScore
}

// Confidence maps the winning match count to a confidence score.
func Confidence(matches int) float64 {
	switch {
	case matches >= 3:
		return 1.0
	case matches >= 1:
		return 0.7
	default:
		return 0.5
	}
}

// classifyWithSecondOpinion asks the inference service to pick a type when
// the keyword classifier fell back and the text is substantial. Any error,
// timeout or unrecognized answer degrades to the keyword result.
func classifyWithSecondOpinion(ctx context.Context, ollama *bridge.Ollama, log *logger.Logger, title, description string) string {
	keywordType, matches := Classify(title, description)
	if keywordType != FallbackType || matches > 0 {
		return keywordType
	}
	if ollama == nil || len(title)+len(description) <= 20 {
		return keywordType
	}

	ctx, cancel := context.WithTimeout(ctx, secondOpinionTimeout)
	defer cancel()

	prompt := "Classify this task into exactly one of these types: " +
		strings.Join(KnownTypes(), ", ") +
		".\nAnswer with the type name only.\n\nTask: " + title + "\n" + description

	response, _, err := ollama.Generate(ctx, bridge.GenerateRequest{Prompt: prompt})
	if err != nil {
		log.Debug("llm classification unavailable", zap.Error(err))
		return keywordType
	}

	if picked := firstKnownType(response); picked != "" {
		return picked
	}
	return keywordType
}

// firstKnownType returns the known type appearing earliest in the text.
func firstKnownType(text string) string {
	lower := strings.ToLower(text)
	best, bestIdx := "", -1
	for _, p := range intentPatterns {
		if idx := strings.Index(lower, p.taskType); idx >= 0 {
			if bestIdx < 0 || idx < bestIdx {
				best, bestIdx = p.taskType, idx
			}
		}
	}
	return best
}
