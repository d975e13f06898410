package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/gateway"
	"github.com/storyweave/storyd/internal/generation"
	"github.com/storyweave/storyd/internal/store"
)

const (
	// recentEpisodes is how many prior entries prewrite pulls.
	recentEpisodes = 3

	// excerptRunes caps each prior-entry excerpt.
	excerptRunes = 200

	// summaryRunes caps the derived summary.
	summaryRunes = 200
)

// Engine executes the generation phases for one job at a time. All
// store access goes through the gateway's tools, so the engine sees
// exactly the surface an external caller would.
type Engine struct {
	gw       *gateway.Gateway
	gen      generation.Generator
	fallback generation.Fallback
	logger   *zap.Logger
}

// NewEngine creates an engine over the given gateway and generator.
func NewEngine(gw *gateway.Gateway, gen generation.Generator, logger *zap.Logger) (*Engine, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{gw: gw, gen: gen, logger: logger}, nil
}

// Run executes every phase in order for a fresh job and returns the
// tagged result. onPhase, if non-nil, is called as each phase starts.
func (e *Engine) Run(ctx context.Context, id string, onPhase func(Phase)) (Result, error) {
	jc := NewJobContext(id)

	phase := PhasePlan
	for phase != PhaseDone {
		if onPhase != nil {
			onPhase(phase)
		}
		next, err := e.Step(ctx, phase, jc)
		if err != nil {
			e.logger.Error("generation phase failed",
				zap.String("job_id", jc.ID),
				zap.String("phase", string(phase)),
				zap.Error(err))
			return Result{OK: false, Reason: fmt.Sprintf("%s: %v", phase, err)}, err
		}
		phase = next
	}

	return Result{
		OK:             true,
		EpisodeID:      jc.ID,
		Title:          jc.Title,
		Content:        jc.Content,
		Summary:        jc.Summary,
		FallbackUsed:   jc.FallbackUsed,
		FallbackReason: jc.FallbackReason,
	}, nil
}

// Step executes one phase against jc and returns the next phase.
// Completing a phase is the only way to advance.
func (e *Engine) Step(ctx context.Context, phase Phase, jc *JobContext) (Phase, error) {
	var err error
	switch phase {
	case PhasePlan:
		err = e.plan(ctx, jc)
	case PhasePrewrite:
		err = e.prewrite(ctx, jc)
	case PhaseDraft:
		err = e.draft(ctx, jc)
	case PhaseRevise:
		err = e.revise(jc)
	case PhaseFinalize:
		err = e.finalize(ctx, jc)
	default:
		return "", fmt.Errorf("cannot step from phase %q", phase)
	}
	if err != nil {
		return "", err
	}
	return Next(phase)
}

// plan gathers the known world and fixes the outline and title.
func (e *Engine) plan(ctx context.Context, jc *JobContext) error {
	if err := e.callTool(ctx, "characters.list", map[string]any{}, &jc.References.Characters); err != nil {
		return fmt.Errorf("list characters: %w", err)
	}
	if err := e.callTool(ctx, "places.list", map[string]any{}, &jc.References.Places); err != nil {
		return fmt.Errorf("list places: %w", err)
	}

	jc.Title = fmt.Sprintf("Chapter %s", shortID(jc.ID))
	jc.Plan = buildPlan(jc.References)

	e.logger.Debug("plan complete",
		zap.String("job_id", jc.ID),
		zap.Int("characters", len(jc.References.Characters)),
		zap.Int("places", len(jc.References.Places)))
	return nil
}

// prewrite pulls recent entries so the draft stays continuous with
// what came before.
func (e *Engine) prewrite(ctx context.Context, jc *JobContext) error {
	var recent []store.Episode
	args := map[string]any{"limit": recentEpisodes}
	if err := e.callTool(ctx, "episodes.list", args, &recent); err != nil {
		return fmt.Errorf("list episodes: %w", err)
	}

	jc.PreviousStory = jc.PreviousStory[:0]
	for _, ep := range recent {
		if excerpt := clipRunes(strings.TrimSpace(ep.Content), excerptRunes); excerpt != "" {
			jc.PreviousStory = append(jc.PreviousStory, excerpt)
		}
	}
	return nil
}

// draft asks the generator for the chapter text. Any generator failure
// or empty output switches to the local fallback; the draft phase
// itself never fails for lack of a model.
func (e *Engine) draft(ctx context.Context, jc *JobContext) error {
	out, err := e.gen.Generate(ctx, buildPrompt(jc))
	switch {
	case err != nil:
		jc.FallbackUsed = true
		jc.FallbackReason = err.Error()
	case strings.TrimSpace(out) == "":
		jc.FallbackUsed = true
		jc.FallbackReason = "generator returned empty content"
	default:
		jc.Content = out
		return nil
	}

	e.logger.Warn("primary generation unavailable, using local fallback",
		zap.String("job_id", jc.ID),
		zap.String("reason", jc.FallbackReason))
	jc.Content = e.fallback.Compose(grounding(jc))
	return nil
}

// revise normalizes the draft and derives the summary.
func (e *Engine) revise(jc *JobContext) error {
	jc.Content = normalize(jc.Content)
	if jc.Content == "" {
		return errors.New("revised content is empty")
	}
	jc.Summary = summarize(jc.Content)
	return nil
}

// finalize persists the episode and upserts every entity the chapter
// touched. Creates that hit an existing name are retried as updates,
// so reruns converge instead of failing.
func (e *Engine) finalize(ctx context.Context, jc *JobContext) error {
	var saved store.Episode
	err := e.callTool(ctx, "episodes.create", map[string]any{
		"id":      jc.ID,
		"title":   jc.Title,
		"content": jc.Content,
		"summary": jc.Summary,
	}, &saved)
	if err != nil {
		return fmt.Errorf("persist episode: %w", err)
	}

	for _, c := range mentionedCharacters(jc) {
		if err := e.upsert(ctx, "characters", c.Name, c.Description); err != nil {
			return fmt.Errorf("upsert character %q: %w", c.Name, err)
		}
	}
	for _, p := range mentionedPlaces(jc) {
		if err := e.upsert(ctx, "places", p.Name, p.Description); err != nil {
			return fmt.Errorf("upsert place %q: %w", p.Name, err)
		}
	}

	e.logger.Info("episode persisted",
		zap.String("job_id", jc.ID),
		zap.String("episode_id", saved.ID),
		zap.Bool("fallback_used", jc.FallbackUsed))
	return nil
}

// upsert creates the named entity, retrying as an update when the
// create reports the name as taken.
func (e *Engine) upsert(ctx context.Context, kind, name, description string) error {
	args := map[string]any{"name": name}
	if description != "" {
		args["description"] = description
	}
	err := e.callTool(ctx, kind+".create", args, nil)
	if err == nil {
		return nil
	}
	if !isDuplicate(err) {
		return err
	}
	return e.callTool(ctx, kind+".update", args, nil)
}

// callTool invokes a tool through the gateway and decodes the JSON
// payload of the first content item into out (unless out is nil).
func (e *Engine) callTool(ctx context.Context, name string, args any, out any) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	params, err := json.Marshal(gateway.CallParams{Name: name, Arguments: rawArgs})
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	resp := e.gw.Handle(ctx, &gateway.Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", name, resp.Error.Message)
	}
	if out == nil {
		return nil
	}

	result, ok := resp.Result.(gateway.CallResult)
	if !ok || len(result.Content) == 0 {
		return fmt.Errorf("%s: unexpected result shape", name)
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), out); err != nil {
		return fmt.Errorf("%s: decode result: %w", name, err)
	}
	return nil
}

// isDuplicate reports whether err looks like a name-taken failure from
// a create tool.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists")
}

// mentionedCharacters returns the referenced characters whose names
// appear in the final content. When nothing matches, the chapter
// introduced no one we track.
func mentionedCharacters(jc *JobContext) []store.Character {
	var out []store.Character
	for _, c := range jc.References.Characters {
		if c.Name != "" && strings.Contains(jc.Content, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func mentionedPlaces(jc *JobContext) []store.Place {
	var out []store.Place
	for _, p := range jc.References.Places {
		if p.Name != "" && strings.Contains(jc.Content, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// grounding projects the job context into fallback input.
func grounding(jc *JobContext) generation.Grounding {
	g := generation.Grounding{RecentExcerpts: jc.PreviousStory}
	for _, c := range jc.References.Characters {
		g.CharacterNames = append(g.CharacterNames, c.Name)
	}
	for _, p := range jc.References.Places {
		g.PlaceNames = append(g.PlaceNames, p.Name)
	}
	return g
}

// buildPlan produces a short outline from the references.
func buildPlan(refs References) string {
	var b strings.Builder
	b.WriteString("Continue the serialized story with one new chapter.")
	if len(refs.Characters) > 0 {
		names := make([]string, 0, len(refs.Characters))
		for _, c := range refs.Characters {
			names = append(names, c.Name)
		}
		fmt.Fprintf(&b, " Feature established characters where natural: %s.",
			strings.Join(capNames(names, maxPlanNames), ", "))
	}
	if len(refs.Places) > 0 {
		names := make([]string, 0, len(refs.Places))
		for _, p := range refs.Places {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&b, " Ground the scene in known places: %s.",
			strings.Join(capNames(names, maxPlanNames), ", "))
	}
	return b.String()
}

// maxPlanNames caps how many names the outline lists per kind.
const maxPlanNames = 5

func capNames(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}

// buildPrompt assembles the generation prompt from the outline, the
// reference sheets, and the recent excerpts.
func buildPrompt(jc *JobContext) string {
	var b strings.Builder
	b.WriteString("You are continuing a serialized story. Write the next chapter in full prose.\n\n")
	fmt.Fprintf(&b, "Outline: %s\n", jc.Plan)

	if len(jc.References.Characters) > 0 {
		b.WriteString("\nCharacters:\n")
		for _, c := range jc.References.Characters {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	}
	if len(jc.References.Places) > 0 {
		b.WriteString("\nPlaces:\n")
		for _, p := range jc.References.Places {
			fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
		}
	}
	if len(jc.PreviousStory) > 0 {
		b.WriteString("\nRecent chapters, newest first:\n")
		for _, excerpt := range jc.PreviousStory {
			fmt.Fprintf(&b, "---\n%s\n", excerpt)
		}
	}

	b.WriteString("\nWrite only the chapter text, no headings or commentary.")
	return b.String()
}

// normalize trims the text and collapses runs of blank lines.
func normalize(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// summarize derives a short summary: the first sentence, clipped.
func summarize(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			text = text[:i+len(string(r))]
			break
		}
	}
	return clipRunes(text, summaryRunes)
}

// shortID returns a compact display form of a job id.
func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
