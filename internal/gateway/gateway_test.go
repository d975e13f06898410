package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyweave/storyd/internal/store"
	"github.com/storyweave/storyd/internal/tools"
)

func newStoreGateway(t *testing.T) (*Gateway, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	read, err := tools.NewReadRegistry(s)
	require.NoError(t, err)
	write, err := tools.NewWriteRegistry(s)
	require.NoError(t, err)

	g, err := New(Config{Read: read, Write: write})
	require.NoError(t, err)
	return g, s
}

func call(t *testing.T, g *Gateway, id any, name string, args string) *Response {
	t.Helper()
	params, err := json.Marshal(CallParams{Name: name, Arguments: json.RawMessage(args)})
	require.NoError(t, err)
	return g.Handle(context.Background(), &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params:  params,
	})
}

func TestHandle_ToolsList(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := g.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(ListResult)
	require.True(t, ok)
	assert.NotEmpty(t, result.Tools)

	// Every listed name is callable: schemas come from the same
	// definitions tools/call validates against.
	names := map[string]bool{}
	for _, entry := range result.Tools {
		summary, ok := entry.(tools.Summary)
		require.True(t, ok)
		names[summary.Name] = true
		assert.NotNil(t, summary.InputSchema)
	}
	for _, expected := range []string{"episodes.list", "characters.get", "characters.create", "places.update"} {
		assert.True(t, names[expected], "missing %s", expected)
	}
}

func TestHandle_ToolsListTrustedFields(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	read, err := tools.NewReadRegistry(s)
	require.NoError(t, err)

	open, err := New(Config{Read: read})
	require.NoError(t, err)
	trusted, err := New(Config{Read: read, TrustedCaller: true})
	require.NoError(t, err)

	openList := open.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"}).Result.(ListResult)
	trustedList := trusted.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"}).Result.(ListResult)

	var openGuidelines, trustedGuidelines int
	for _, entry := range openList.Tools {
		if entry.(tools.Summary).UsageGuidelines != "" {
			openGuidelines++
		}
	}
	for _, entry := range trustedList.Tools {
		if entry.(tools.Summary).UsageGuidelines != "" {
			trustedGuidelines++
		}
	}
	assert.Zero(t, openGuidelines)
	assert.Positive(t, trustedGuidelines)
}

func TestHandle_CallCharacterGet(t *testing.T) {
	g, s := newStoreGateway(t)
	_, err := s.CreateCharacter(context.Background(), store.Character{Name: "이준", Description: "주인공"})
	require.NoError(t, err)

	resp := call(t, g, "req-1", "characters.get", `{"name":"이준"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.ID)

	result, ok := resp.Result.(CallResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var character store.Character
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &character))
	assert.Equal(t, "이준", character.Name)
	assert.Equal(t, "주인공", character.Description)
}

func TestHandle_CallInvalidParamsListsEveryField(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := call(t, g, 7, "episodes.create", `{"title":"","extra":true}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)

	violations, ok := resp.Error.Data["violations"].([]any)
	require.True(t, ok)
	// Missing id, missing content, empty title, unexpected property.
	assert.GreaterOrEqual(t, len(violations), 3)
}

func TestHandle_InvalidArgsNeverInvokeHandler(t *testing.T) {
	read := tools.NewRegistry()
	invoked := false
	require.NoError(t, read.Register(&tools.Definition{
		Name: "probe.get",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"key"},
			"properties": map[string]any{
				"key": map[string]any{"type": "string"},
			},
		},
		Handler: func(context.Context, json.RawMessage) (any, error) {
			invoked = true
			return nil, nil
		},
	}))
	g, err := New(Config{Read: read})
	require.NoError(t, err)

	resp := call(t, g, 1, "probe.get", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
	assert.False(t, invoked)
}

func TestHandle_ToolNotFound(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := call(t, g, 2, "episodes.destroy", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ToolNotFound, resp.Error.Code)
}

func TestHandle_MethodNotFound(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := g.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 3, Method: "resources/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.Equal(t, 3, resp.ID)
}

func TestHandle_ExecutionErrorWrapped(t *testing.T) {
	read := tools.NewRegistry()
	require.NoError(t, read.Register(&tools.Definition{
		Name: "broken.get",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("backend exploded")
		},
	}))
	g, err := New(Config{Read: read})
	require.NoError(t, err)

	resp := call(t, g, 4, "broken.get", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ToolExecutionError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "backend exploded")
}

func TestHandle_PanicBecomesExecutionError(t *testing.T) {
	read := tools.NewRegistry()
	require.NoError(t, read.Register(&tools.Definition{
		Name: "panicky.get",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			panic("unexpected state")
		},
	}))
	g, err := New(Config{Read: read})
	require.NoError(t, err)

	resp := call(t, g, 5, "panicky.get", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ToolExecutionError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unexpected state")
}

func TestHandleRaw_ParseErrorNullID(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := g.HandleRaw(context.Background(), []byte(`{"jsonrpc": "2.0", id:`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ParseError, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestHandleRaw_WrongShapeIsInvalidRequest(t *testing.T) {
	g, _ := newStoreGateway(t)

	// Valid JSON that cannot be an envelope at all.
	for _, body := range []string{`[1,2,3]`, `"tools/list"`, `5`} {
		resp := g.HandleRaw(context.Background(), []byte(body))
		require.NotNil(t, resp.Error, body)
		assert.Equal(t, InvalidRequest, resp.Error.Code, body)
		assert.Nil(t, resp.ID, body)
	}

	// A bad field inside an otherwise fine object keeps its id.
	resp := g.HandleRaw(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":5}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)
	assert.Equal(t, float64(1), resp.ID)
}

func TestHandle_InvalidEnvelope(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := g.Handle(context.Background(), &Request{JSONRPC: "1.0", ID: 6, Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)

	// An unparseable id comes back as null.
	resp = g.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: map[string]any{"bad": true}, Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestHandle_CallWithoutParams(t *testing.T) {
	g, _ := newStoreGateway(t)

	resp := g.Handle(context.Background(), &Request{JSONRPC: "2.0", ID: 8, Method: "tools/call"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestHandle_WriteToolUpsertFlow(t *testing.T) {
	g, _ := newStoreGateway(t)

	first := call(t, g, 9, "characters.create", `{"name":"세라","description":"조연"}`)
	require.Nil(t, first.Error)

	// Duplicate create surfaces the conflict message callers match on.
	second := call(t, g, 10, "characters.create", `{"name":"세라","description":"바뀐 설명"}`)
	require.NotNil(t, second.Error)
	assert.Equal(t, ToolExecutionError, second.Error.Code)
	assert.Contains(t, second.Error.Message, "already exists")

	update := call(t, g, 11, "characters.update", `{"name":"세라","description":"바뀐 설명"}`)
	require.Nil(t, update.Error)

	list := call(t, g, 12, "characters.list", `{}`)
	require.Nil(t, list.Error)
	var characters []store.Character
	text := list.Result.(CallResult).Content[0].Text
	require.NoError(t, json.Unmarshal([]byte(text), &characters))
	require.Len(t, characters, 1)
	assert.Equal(t, "바뀐 설명", characters[0].Description)
}
