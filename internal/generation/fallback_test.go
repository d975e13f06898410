package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback_Deterministic(t *testing.T) {
	g := Grounding{
		CharacterNames: []string{"세라", "이준"},
		PlaceNames:     []string{"서울", "부산"},
		RecentExcerpts: []string{"지난 밤, 모든 것이 변했다."},
	}

	var f Fallback
	first := f.Compose(g)
	second := f.Compose(g)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestFallback_OrderInsensitive(t *testing.T) {
	var f Fallback
	a := f.Compose(Grounding{CharacterNames: []string{"이준", "세라"}})
	b := f.Compose(Grounding{CharacterNames: []string{"세라", "이준"}})
	assert.Equal(t, a, b)
}

func TestFallback_UsesGrounding(t *testing.T) {
	var f Fallback
	out := f.Compose(Grounding{
		CharacterNames: []string{"이준"},
		PlaceNames:     []string{"서울"},
	})
	assert.Contains(t, out, "이준")
	assert.Contains(t, out, "서울")
}

func TestFallback_EmptyGroundingStillProducesContent(t *testing.T) {
	var f Fallback
	out := f.Compose(Grounding{})
	assert.NotEmpty(t, out)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI("gpt-4o-mini", "", "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisabled_AlwaysFails(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), "anything")
	require.ErrorIs(t, err, ErrNotConfigured)
}
