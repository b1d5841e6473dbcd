package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/refine/pkg/session"
)

func strptr(s string) *string { return &s }

func seedStore(t *testing.T) (*session.MemoryStore, *session.Session, *session.Session) {
	t.Helper()
	store := session.NewMemoryStore()

	plants, err := store.Create("Explain photosynthesis", "plant biology")
	require.NoError(t, err)
	require.NoError(t, plants.Append(session.Iteration{
		PromptSent: "Explain photosynthesis",
		Response:   strptr("Photosynthesis converts light into chemical energy inside chloroplasts."),
	}))
	require.NoError(t, plants.Append(session.Iteration{
		PromptSent:      "Explain photosynthesis in bullet points",
		GenerationError: "provider timeout",
	}))
	require.NoError(t, store.Save(plants))

	stars, err := store.Create("Describe stellar fusion", "")
	require.NoError(t, err)
	require.NoError(t, stars.Append(session.Iteration{
		PromptSent: "Describe stellar fusion",
		Response:   strptr("Stars fuse hydrogen into helium, releasing energy."),
	}))
	require.NoError(t, store.Save(stars))

	return store, plants, stars
}

func TestArchive_KeywordSearch(t *testing.T) {
	store, plants, stars := seedStore(t)

	a, err := New(store)
	require.NoError(t, err)
	require.NoError(t, a.IndexAll(context.Background()))

	// Failed-generation iterations are not indexed.
	assert.Equal(t, 2, a.Count())

	results, err := a.Search(context.Background(), "photosynthesis", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, plants.ID, results[0].SessionID)
	assert.Equal(t, 0, results[0].Iteration)
	assert.Equal(t, "Explain photosynthesis", results[0].Prompt)
	assert.Equal(t, 1, results[0].Rank)

	results, err = a.Search(context.Background(), "hydrogen fusion", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stars.ID, results[0].SessionID)
}

func TestArchive_SearchRanksPromptMatchesHigher(t *testing.T) {
	store := session.NewMemoryStore()

	inPrompt, err := store.Create("Explain osmosis", "")
	require.NoError(t, err)
	require.NoError(t, inPrompt.Append(session.Iteration{
		PromptSent: "Explain osmosis",
		Response:   strptr("Water crosses a membrane toward higher solute concentration."),
	}))
	require.NoError(t, store.Save(inPrompt))

	inBody, err := store.Create("Explain diffusion", "")
	require.NoError(t, err)
	require.NoError(t, inBody.Append(session.Iteration{
		PromptSent: "Explain diffusion",
		Response:   strptr("Diffusion is related to osmosis but applies to any particle movement."),
	}))
	require.NoError(t, store.Save(inBody))

	a, err := New(store)
	require.NoError(t, err)
	require.NoError(t, a.IndexAll(context.Background()))

	results, err := a.Search(context.Background(), "osmosis", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, inPrompt.ID, results[0].SessionID)
}

func TestArchive_SemanticSearchWithStubEmbedder(t *testing.T) {
	store, plants, _ := seedStore(t)

	// A trivial embedder keyed on one token, enough to exercise the
	// vector path end to end.
	embedder := func(ctx context.Context, text string) ([]float32, error) {
		v := float32(0.1)
		if strings.Contains(strings.ToLower(text), "photosynthesis") {
			v = 1.0
		}
		return []float32{v, 1 - v}, nil
	}

	a, err := New(store, WithEmbedding(embedder))
	require.NoError(t, err)
	require.NoError(t, a.IndexAll(context.Background()))

	results, err := a.Search(context.Background(), "photosynthesis", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, plants.ID, results[0].SessionID)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestArchive_ReindexReplacesSessionDocs(t *testing.T) {
	store, plants, _ := seedStore(t)

	a, err := New(store)
	require.NoError(t, err)
	require.NoError(t, a.IndexAll(context.Background()))
	require.Equal(t, 2, a.Count())

	require.NoError(t, plants.Append(session.Iteration{
		PromptSent: "Explain photosynthesis with chemistry",
		Response:   strptr("6CO2 + 6H2O -> C6H12O6 + 6O2 under light."),
	}))
	require.NoError(t, a.IndexSession(context.Background(), plants))

	assert.Equal(t, 3, a.Count())

	results, err := a.Search(context.Background(), "C6H12O6", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Iteration)
}

func TestArchive_RemoveSession(t *testing.T) {
	store, plants, _ := seedStore(t)

	a, err := New(store)
	require.NoError(t, err)
	require.NoError(t, a.IndexAll(context.Background()))

	a.RemoveSession(context.Background(), plants.ID)
	assert.Equal(t, 1, a.Count())

	results, err := a.Search(context.Background(), "photosynthesis", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestArchive_EmptyQuery(t *testing.T) {
	store, _, _ := seedStore(t)

	a, err := New(store)
	require.NoError(t, err)

	_, err = a.Search(context.Background(), "   ", 10)
	assert.Error(t, err)
}
