package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storyweave/storyd/internal/store"
)

// groundingPhases are the phases that gather context before writing.
var groundingPhases = []string{"plan", "prewrite", "draft", "revise"}

// ReadTools returns the read tool set (list/get) over the content
// store. No handler in this set has side effects.
func ReadTools(s *store.Store) []*Definition {
	return []*Definition{
		{
			Name:        "episodes.list",
			Description: "List recent episodes, newest first.",
			InputSchema: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"limit": map[string]any{
						"type":    "integer",
						"minimum": 1,
						"maximum": 100,
					},
				},
			},
			UsageGuidelines: "Use a small limit; recent entries carry the most narrative context.",
			AllowedPhases:   groundingPhases,
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var params struct {
					Limit int `json:"limit"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return nil, err
				}
				return s.ListEpisodes(ctx, params.Limit)
			},
		},
		{
			Name:        "episodes.get",
			Description: "Fetch a single episode by id.",
			InputSchema: map[string]any{
				"type":                 "object",
				"required":             []any{"id"},
				"additionalProperties": false,
				"properties": map[string]any{
					"id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			AllowedPhases: groundingPhases,
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var params struct {
					ID string `json:"id"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return nil, err
				}
				return s.GetEpisode(ctx, params.ID)
			},
		},
		{
			Name:          "characters.list",
			Description:   "List all known characters.",
			InputSchema:   emptyObjectSchema(),
			AllowedPhases: groundingPhases,
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return s.ListCharacters(ctx)
			},
		},
		{
			Name:          "characters.get",
			Description:   "Fetch a single character by name.",
			InputSchema:   nameOnlySchema(),
			AllowedPhases: groundingPhases,
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var params struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return nil, err
				}
				return s.GetCharacter(ctx, params.Name)
			},
		},
		{
			Name:          "places.list",
			Description:   "List all known places.",
			InputSchema:   emptyObjectSchema(),
			AllowedPhases: groundingPhases,
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return s.ListPlaces(ctx)
			},
		},
		{
			Name:          "places.get",
			Description:   "Fetch a single place by name.",
			InputSchema:   nameOnlySchema(),
			AllowedPhases: groundingPhases,
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var params struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(args, &params); err != nil {
					return nil, err
				}
				return s.GetPlace(ctx, params.Name)
			},
		},
	}
}

// WriteTools returns the write tool set (create/update) over the
// content store. Create handlers report duplicates with "already
// exists" in the message; callers upsert by retrying as update.
func WriteTools(s *store.Store) []*Definition {
	return []*Definition{
		{
			Name:        "episodes.create",
			Description: "Persist a new episode.",
			InputSchema: map[string]any{
				"type":                 "object",
				"required":             []any{"id", "title", "content"},
				"additionalProperties": false,
				"properties": map[string]any{
					"id":      map[string]any{"type": "string", "minLength": 1},
					"title":   map[string]any{"type": "string", "minLength": 1, "maxLength": 200},
					"content": map[string]any{"type": "string", "minLength": 1},
					"summary": map[string]any{"type": "string"},
				},
			},
			UsageGuidelines: "Call once per finished episode; ids are not reusable.",
			AllowedPhases:   []string{"finalize"},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var e store.Episode
				if err := json.Unmarshal(args, &e); err != nil {
					return nil, err
				}
				if err := s.CreateEpisode(ctx, e); err != nil {
					return nil, err
				}
				return s.GetEpisode(ctx, e.ID)
			},
		},
		{
			Name:            "characters.create",
			Description:     "Persist a new character, keyed by name.",
			InputSchema:     namedEntitySchema(),
			UsageGuidelines: "If the name already exists the call fails; retry as characters.update.",
			AllowedPhases:   []string{"finalize"},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var c store.Character
				if err := json.Unmarshal(args, &c); err != nil {
					return nil, err
				}
				return s.CreateCharacter(ctx, c)
			},
		},
		{
			Name:          "characters.update",
			Description:   "Update an existing character's description.",
			InputSchema:   namedEntitySchema(),
			AllowedPhases: []string{"finalize"},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var c store.Character
				if err := json.Unmarshal(args, &c); err != nil {
					return nil, err
				}
				return s.UpdateCharacter(ctx, c)
			},
		},
		{
			Name:            "places.create",
			Description:     "Persist a new place, keyed by name.",
			InputSchema:     namedEntitySchema(),
			UsageGuidelines: "If the name already exists the call fails; retry as places.update.",
			AllowedPhases:   []string{"finalize"},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var p store.Place
				if err := json.Unmarshal(args, &p); err != nil {
					return nil, err
				}
				return s.CreatePlace(ctx, p)
			},
		},
		{
			Name:          "places.update",
			Description:   "Update an existing place's description.",
			InputSchema:   namedEntitySchema(),
			AllowedPhases: []string{"finalize"},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var p store.Place
				if err := json.Unmarshal(args, &p); err != nil {
					return nil, err
				}
				return s.UpdatePlace(ctx, p)
			},
		},
	}
}

// NewReadRegistry builds a registry with the read tool set.
func NewReadRegistry(s *store.Store) (*Registry, error) {
	r := NewRegistry()
	if err := r.RegisterAll(ReadTools(s)); err != nil {
		return nil, fmt.Errorf("read tools: %w", err)
	}
	return r, nil
}

// NewWriteRegistry builds a registry with the write tool set.
func NewWriteRegistry(s *store.Store) (*Registry, error) {
	r := NewRegistry()
	if err := r.RegisterAll(WriteTools(s)); err != nil {
		return nil, fmt.Errorf("write tools: %w", err)
	}
	return r, nil
}

func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
	}
}

func nameOnlySchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"name"},
		"additionalProperties": false,
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
		},
	}
}

func namedEntitySchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"name"},
		"additionalProperties": false,
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1, "maxLength": 100},
			"description": map[string]any{"type": "string", "maxLength": 2000},
		},
	}
}
