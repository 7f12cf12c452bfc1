package store

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideafit/internal/model"
)

func newTestStore(t *testing.T) (*SQLStore, *time.Time) {
	t.Helper()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := NewSQLStore(Config{Now: func() time.Time { return now }})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, &now
}

func sampleIdea(projectID string) model.IdeaCreate {
	return model.IdeaCreate{
		ProjectID:  projectID,
		Version:    "B",
		Title:      "AI受付",
		Target:     "クリニック",
		Pain:       "電話対応が多い",
		Solution:   "AIが一次受付",
		Price:      9800,
		Channel:    "展示会",
		Onboarding: "番号転送のみ",
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx))

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 3)

	ideas, err := s.ListIdeas(ctx, "")
	require.NoError(t, err)
	assert.Len(t, ideas, 3)

	personas, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	require.Len(t, personas, 2)
	assert.Equal(t, "persona-startup-lead-01", personas[0].ID)
	assert.Equal(t, model.CategoryStudent, personas[1].Category)
	require.NotNil(t, personas[1].Age)
	assert.Equal(t, 21, *personas[1].Age)
	assert.Equal(t, 0.82, personas[1].Traits["novelty"])
	assert.Equal(t, "フレンドリー", personas[1].CommentStyle)

	reactions, err := s.ListReactions(ctx, "idea-video-concierge", 20)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, 0.58, reactions[0].IntentToTry)
}

func TestCreateProjectSlugCollisions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateProject(ctx, "  Hello World! ")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", first.ID)
	assert.Equal(t, "Hello World!", first.Name)

	second, err := s.CreateProject(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-1", second.ID)

	third, err := s.CreateProject(ctx, "Hello-World")
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", third.ID)

	jp, err := s.CreateProject(ctx, "新規事業")
	require.NoError(t, err)
	assert.Equal(t, "project-1000", jp.ID)

	_, err = s.CreateProject(ctx, "   ")
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestCreateIdeaAssignsIDsAndProject(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateIdea(ctx, sampleIdea("newproj"))
	require.NoError(t, err)
	assert.Equal(t, "idea-1000", a.ID)
	assert.Equal(t, "2025-03-01T09:00:00.000000Z", a.CreatedAt)

	*now = now.Add(time.Minute)
	b, err := s.CreateIdea(ctx, sampleIdea("newproj"))
	require.NoError(t, err)
	assert.Equal(t, "idea-1001", b.ID)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "newproj", projects[0].Name)

	ideas, err := s.ListIdeas(ctx, "newproj")
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Equal(t, b.ID, ideas[0].ID, "newest first")

	none, err := s.ListIdeas(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := s.GetIdea(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestGetIdeaNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetIdea(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	_, err = s.ListReactions(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReactionsRespectLimitAndOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	idea, err := s.CreateIdea(ctx, sampleIdea("p1"))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		r, err := s.CreateReaction(ctx, model.Reaction{IdeaID: idea.ID, ProjectID: "p2", PersonaID: "persona-gpt", Text: strings.Repeat("x", i+1), Likelihood: 0.5, IntentToTry: 0.4})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(r.ID, "reaction-"))
	}

	got, err := s.ListReactions(ctx, idea.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "x", got[0].Text)
	assert.Equal(t, "xxx", got[2].Text)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2, "reaction project is registered")

	_, err = s.CreateReaction(ctx, model.Reaction{})
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestCreatePersona(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	age := 40
	p, err := s.CreatePersona(ctx, model.PersonaCreate{
		Name:     "佐藤",
		Category: model.CategoryVC,
		Age:      &age,
		Traits:   map[string]float64{"novelty": 1.4, "risk": -0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, "persona-1", p.ID)
	assert.Equal(t, 1.0, p.Traits["novelty"])
	assert.Equal(t, 0.0, p.Traits["risk"])

	q, err := s.CreatePersona(ctx, model.PersonaCreate{Name: "田中", Category: model.CategoryHomemaker})
	require.NoError(t, err)
	assert.Equal(t, "persona-2", q.ID)

	list, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p.ID, list[0].ID)
	assert.Nil(t, list[1].Age)
	assert.Nil(t, list[1].Traits)

	_, err = s.CreatePersona(ctx, model.PersonaCreate{Name: "x", Category: "宇宙人"})
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
}

func TestStatusOfForeignError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}
