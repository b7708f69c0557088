// Package debate runs multi-agent deliberation sessions: per topic, an
// analysis round, a rebuttal round, a voting round and a compiled consensus.
// Rounds run agents in parallel under a concurrency cap; topics run in order.
package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

const (
	actionItemExcerpt = 200
	consensusExcerpt  = 150
	proposalExcerpt   = 200
)

// Engine owns the in-memory session store and drives debate rounds through
// the ollama bridge.
type Engine struct {
	ollama      *bridge.Ollama
	concurrency int
	agentsDir   string
	log         *logger.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*v1.DebateSession
}

// NewEngine creates the engine. The agents directory is only used to build
// the informational system context paragraph.
func NewEngine(ollama *bridge.Ollama, cfg config.DebateConfig, agentsDir string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Engine{
		ollama:      ollama,
		concurrency: concurrency,
		agentsDir:   agentsDir,
		log:         log.WithFields(zap.String("component", "debate")),
		now:         time.Now,
	}
}

// Start registers a new session and runs it in the background. Unknown agent
// names are rejected; empty topics or agents fall back to the defaults.
func (e *Engine) Start(ctx context.Context, topics, agentNames []string) (*v1.DebateSession, error) {
	staff := SelectStaff(agentNames)
	if len(staff) == 0 {
		return nil, apperrors.Validation(fmt.Sprintf(
			"no valid agents selected, available: %s", strings.Join(StaffNames(DefaultStaff), ", ")))
	}
	if len(topics) == 0 {
		topics = DefaultTopics
	}

	session := &v1.DebateSession{
		ID:        task.NewID(),
		Topics:    topics,
		Agents:    StaffNames(staff),
		Status:    v1.DebateStatusRunning,
		StartedAt: e.now(),
	}

	e.mu.Lock()
	if e.sessions == nil {
		e.sessions = make(map[string]*v1.DebateSession)
	}
	e.sessions[session.ID] = session
	e.mu.Unlock()

	e.log.Info("debate started",
		zap.String("session_id", session.ID),
		zap.Int("topics", len(topics)),
		zap.Int("agents", len(staff)))

	go e.run(ctx, session, staff)
	return session.Clone(), nil
}

// Get returns a copy of a session by id. The copy is detached from the
// running debate, so callers can marshal it without holding the lock.
func (e *Engine) Get(id string) (*v1.DebateSession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	session, ok := e.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("debate session", id)
	}
	return session.Clone(), nil
}

// History returns copies of all sessions, newest first.
func (e *Engine) History() []*v1.DebateSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sessions := make([]*v1.DebateSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions
}

func (e *Engine) run(ctx context.Context, session *v1.DebateSession, staff []StaffAgent) {
	systemContext := e.buildContext()

	for i, topic := range session.Topics {
		if ctx.Err() != nil {
			e.finish(session, v1.DebateStatusFailed, ctx.Err().Error())
			return
		}
		e.log.Info("debating topic",
			zap.String("session_id", session.ID),
			zap.Int("topic", i+1),
			zap.Int("of", len(session.Topics)))

		analyses := e.runRound(ctx, staff, func(a StaffAgent) (string, string) {
			return analysisPrompt(systemContext, topic, a), analysisSystemPrompt(a)
		})
		rebuttals := e.runRound(ctx, staff, func(a StaffAgent) (string, string) {
			return rebuttalPrompt(topic, analyses, staff, a), rebuttalSystemPrompt(a)
		})
		votes := e.runVotingRound(ctx, topic, staff, analyses)
		consensus, actionItems := compileConsensus(topic, staff, analyses, votes)

		result := &v1.TopicResult{
			Topic:       topic,
			Analyses:    analyses,
			Rebuttals:   rebuttals,
			Votes:       votes,
			Consensus:   consensus,
			ActionItems: actionItems,
		}

		e.mu.Lock()
		session.Results = append(session.Results, result)
		e.mu.Unlock()
	}

	e.finish(session, v1.DebateStatusCompleted, "")
	e.log.Info("debate completed", zap.String("session_id", session.ID))
}

func (e *Engine) finish(session *v1.DebateSession, status v1.DebateStatus, errText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session.Status = status
	session.Error = errText
	completed := e.now()
	session.CompletedAt = &completed
}

// runRound asks every panel member in parallel, capped at the configured
// concurrency. A failing call contributes an error-tagged entry instead of
// aborting the round.
func (e *Engine) runRound(ctx context.Context, staff []StaffAgent, prompts func(StaffAgent) (string, string)) map[string]string {
	responses := make([]string, len(staff))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, agent := range staff {
		g.Go(func() error {
			prompt, systemPrompt := prompts(agent)
			text, _, err := e.ollama.Generate(gctx, bridge.GenerateRequest{
				Model:        agent.Model,
				Prompt:       prompt,
				SystemPrompt: systemPrompt,
				Temperature:  &agent.Temperature,
			})
			if err != nil {
				e.log.Warn("debate call failed",
					zap.String("agent", agent.Name), zap.Error(err))
				text = "[ERROR: " + err.Error() + "]"
			}
			responses[i] = text
			return nil
		})
	}
	g.Wait()

	out := make(map[string]string, len(staff))
	for i, agent := range staff {
		out[agent.Name] = responses[i]
	}
	return out
}

// runVotingRound collects 1-5 scores from every member and tallies totals
// per analysed agent. Self-votes and unknown names are discarded; a
// malformed ballot counts as empty.
func (e *Engine) runVotingRound(ctx context.Context, topic string, staff []StaffAgent, analyses map[string]string) map[string]float64 {
	names := StaffNames(staff)
	ballots := make([]map[string]int, len(staff))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, agent := range staff {
		g.Go(func() error {
			text, _, err := e.ollama.Generate(gctx, bridge.GenerateRequest{
				Model:        agent.Model,
				Prompt:       votingPrompt(topic, staff, analyses, agent),
				SystemPrompt: "Respond with valid JSON only. No explanation.",
				Temperature:  &agent.Temperature,
			})
			if err != nil {
				e.log.Warn("vote call failed",
					zap.String("agent", agent.Name), zap.Error(err))
				return nil
			}
			ballots[i] = parseBallot(text, agent.Name, names)
			return nil
		})
	}
	g.Wait()

	totals := make(map[string]float64)
	for _, ballot := range ballots {
		for target, score := range ballot {
			totals[target] += float64(score)
		}
	}
	return totals
}

// parseBallot extracts the first JSON object in the response and returns the
// clamped scores for other panel members.
func parseBallot(text, voter string, names []string) map[string]int {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return map[string]int{}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return map[string]int{}
	}
	voteData := raw
	if nested, ok := raw["votes"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			voteData = inner
		}
	}

	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	ballot := make(map[string]int)
	for target, value := range voteData {
		if !known[target] || target == voter {
			continue
		}
		var score float64
		if err := json.Unmarshal(value, &score); err != nil {
			continue
		}
		n := int(score)
		if n < 1 {
			n = 1
		}
		if n > 5 {
			n = 5
		}
		ballot[target] = n
	}
	return ballot
}

// compileConsensus ranks agents by total score and turns the top three into
// action items.
func compileConsensus(topic string, staff []StaffAgent, analyses map[string]string, votes map[string]float64) (string, []v1.ActionItem) {
	type ranked struct {
		name  string
		score float64
	}
	ranking := make([]ranked, 0, len(votes))
	for name, score := range votes {
		ranking = append(ranking, ranked{name, score})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].score != ranking[j].score {
			return ranking[i].score > ranking[j].score
		}
		return ranking[i].name < ranking[j].name
	})

	var b strings.Builder
	fmt.Fprintf(&b, "## Consensus on: %s\n\n", topic)
	b.WriteString("**Ranking (by peer vote):**\n")
	for i, r := range ranking {
		fmt.Fprintf(&b, "%d. **%s** (score: %.0f) — %s\n",
			i+1, r.name, r.score, excerpt(analyses[r.name], consensusExcerpt))
	}

	items := make([]v1.ActionItem, 0, 3)
	for i, r := range ranking {
		if i >= 3 {
			break
		}
		items = append(items, v1.ActionItem{
			Agent:   r.name,
			Summary: excerpt(analyses[r.name], actionItemExcerpt),
			Rank:    i + 1,
		})
	}
	return b.String(), items
}

// buildContext produces the informational paragraph shown to every agent.
func (e *Engine) buildContext() string {
	entries, err := os.ReadDir(e.agentsDir)
	if err != nil {
		return "No context available."
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "No context available."
	}
	return fmt.Sprintf("Active agents: %s (%d total)", strings.Join(names, ", "), len(names))
}

func analysisPrompt(systemContext, topic string, a StaffAgent) string {
	return fmt.Sprintf(
		"## System Context\n%s\n\n"+
			"## Topic for Analysis\n%s\n\n"+
			"As %s (%s), analyze this topic from your perspective (%s). Provide:\n"+
			"1. Your assessment of the current state\n"+
			"2. Top 3 concrete proposals with priority (HIGH/MEDIUM/LOW)\n"+
			"3. Estimated effort per proposal (hours/days)\n\n"+
			"Be specific and actionable. Max 300 words.",
		systemContext, topic, a.Role, a.Name, a.Perspective)
}

func analysisSystemPrompt(a StaffAgent) string {
	return fmt.Sprintf(
		"You are %s in a multi-agent debate. Your expertise: %s. Be concise, specific, and actionable.",
		a.Role, a.Perspective)
}

func rebuttalPrompt(topic string, analyses map[string]string, staff []StaffAgent, a StaffAgent) string {
	var summary strings.Builder
	for _, member := range staff {
		fmt.Fprintf(&summary, "### %s (%s):\n%s\n\n", member.Name, member.Role, analyses[member.Name])
	}
	return fmt.Sprintf(
		"## Topic: %s\n\n"+
			"## All Proposals from Round 1:\n%s\n"+
			"As %s (%s), review ALL proposals above. For each other agent's proposals:\n"+
			"- SUPPORT proposals that align with your expertise area\n"+
			"- CHALLENGE proposals that have gaps or risks\n"+
			"- SUGGEST improvements or combinations\n\n"+
			"Be constructive. Max 250 words.",
		topic, summary.String(), a.Role, a.Name)
}

func rebuttalSystemPrompt(a StaffAgent) string {
	return fmt.Sprintf(
		"You are %s reviewing proposals from other specialists. Be fair, constructive, and focus on your area: %s.",
		a.Role, a.Perspective)
}

func votingPrompt(topic string, staff []StaffAgent, analyses map[string]string, voter StaffAgent) string {
	var proposals strings.Builder
	for _, member := range staff {
		fmt.Fprintf(&proposals, "- %s: %s\n", member.Name, excerpt(analyses[member.Name], proposalExcerpt))
	}

	var template []string
	for _, member := range staff {
		if member.Name != voter.Name {
			template = append(template, fmt.Sprintf("%q: <1-5>", member.Name))
		}
	}
	return fmt.Sprintf(
		"## Topic: %s\n\n"+
			"## Proposals:\n%s\n"+
			"Rate each proposal from 1 (weak) to 5 (excellent). "+
			"You CANNOT vote for yourself. Respond in JSON format:\n"+
			`{"votes": {%s}}`,
		topic, proposals.String(), strings.Join(template, ", "))
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
