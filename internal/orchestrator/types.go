// Package orchestrator drives the phased story-generation job: an
// explicit state machine over a single JobContext, calling tools
// through the gateway and persisting derived entities after finalize.
package orchestrator

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/storyweave/storyd/internal/store"
)

// Phase is one step of the generation sequence.
type Phase string

const (
	// PhasePlan gathers references and sets the episode outline.
	PhasePlan Phase = "plan"

	// PhasePrewrite pulls recent entries for narrative continuity.
	PhasePrewrite Phase = "prewrite"

	// PhaseDraft produces the chapter text.
	PhaseDraft Phase = "draft"

	// PhaseRevise normalizes the draft and derives the summary.
	PhaseRevise Phase = "revise"

	// PhaseFinalize derives entities and persists everything.
	PhaseFinalize Phase = "finalize"

	// PhaseDone is the terminal state.
	PhaseDone Phase = "done"
)

// AllPhases returns the executable phases in order.
func AllPhases() []Phase {
	return []Phase{PhasePlan, PhasePrewrite, PhaseDraft, PhaseRevise, PhaseFinalize}
}

// Next returns the phase that follows p. Transitions are strictly
// forward; there is no way to skip or revisit a phase.
func Next(p Phase) (Phase, error) {
	switch p {
	case PhasePlan:
		return PhasePrewrite, nil
	case PhasePrewrite:
		return PhaseDraft, nil
	case PhaseDraft:
		return PhaseRevise, nil
	case PhaseRevise:
		return PhaseFinalize, nil
	case PhaseFinalize:
		return PhaseDone, nil
	default:
		return "", fmt.Errorf("no transition from phase %q", p)
	}
}

// References is the grounding material gathered during planning.
type References struct {
	Characters []store.Character
	Places     []store.Place
}

// JobContext threads the mutable state of one generation job through
// the phases. It is owned by exactly one run and discarded afterwards;
// only the derived entities are persisted.
type JobContext struct {
	// ID is the timestamp-derived job id, reused as the episode id.
	ID string

	// Title is the episode title set during planning.
	Title string

	// Plan is the outline the draft follows.
	Plan string

	// PreviousStory holds excerpts of recent entries, newest first.
	PreviousStory []string

	// References is the known-world grounding.
	References References

	// Content is the chapter text, written by the draft phase and
	// rewritten by revise.
	Content string

	// Summary is derived from Content during revise.
	Summary string

	// FallbackUsed marks that the deterministic local generator
	// produced Content instead of the primary model.
	FallbackUsed bool

	// FallbackReason carries the upstream failure when FallbackUsed.
	FallbackReason string
}

// NewJobID returns a fresh timestamp-derived job id.
func NewJobID() string {
	return ulid.Make().String()
}

// NewJobContext creates the context for one job.
func NewJobContext(id string) *JobContext {
	return &JobContext{ID: id}
}

// Result is the tagged outcome of a generation job. Orchestrator runs
// return a Result rather than letting failures escape the API
// boundary.
type Result struct {
	OK             bool   `json:"ok"`
	EpisodeID      string `json:"episode_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Content        string `json:"content,omitempty"`
	Summary        string `json:"summary,omitempty"`
	FallbackUsed   bool   `json:"fallback_used"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
