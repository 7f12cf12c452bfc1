// Package simulate runs ideas past the registered personas and scores them.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/joelkehle/ideafit/internal/insight"
	"github.com/joelkehle/ideafit/internal/model"
	"github.com/joelkehle/ideafit/internal/statkit"
	"github.com/joelkehle/ideafit/internal/store"
)

const (
	maxSummaryComments = 10
	scorePersonaID     = "persona-gpt"
)

var tracer = otel.Tracer("github.com/joelkehle/ideafit/internal/simulate")

type Store interface {
	GetIdea(ctx context.Context, id string) (model.Idea, error)
	ListPersonas(ctx context.Context) ([]model.Persona, error)
	CreateReaction(ctx context.Context, r model.Reaction) (model.Reaction, error)
}

// InsightSource is satisfied by *insight.Adapter.
type InsightSource interface {
	CallJSON(ctx context.Context, call insight.JSONCall) map[string]any
	CallText(ctx context.Context, call insight.TextCall) string
	React(ctx context.Context, idea model.Idea) map[string]any
}

type Service struct {
	store   Store
	adapter InsightSource
	engine  *statkit.Engine
}

func NewService(s Store, adapter InsightSource, engine *statkit.Engine) *Service {
	return &Service{store: s, adapter: adapter, engine: engine}
}

// ScoredIdea is the outcome of one single-shot scoring call.
type ScoredIdea struct {
	Idea         model.Idea
	Insight      model.Insight
	Score        model.Score
	Contribution model.Contribution
	Reaction     model.Reaction
}

// Simulate returns one result per resolvable idea id. Unknown ids are dropped;
// an empty result is not an error. Errors come only from the store.
func (s *Service) Simulate(ctx context.Context, ideaIDs []string) ([]model.SimulationResult, error) {
	ideas, err := s.resolve(ctx, ideaIDs)
	if err != nil {
		return nil, err
	}
	if len(ideas) == 0 {
		return []model.SimulationResult{}, nil
	}
	personas, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	if len(personas) == 0 {
		slog.Warn("simulation skipped, no personas registered", "ideas", len(ideas))
		return []model.SimulationResult{}, nil
	}

	ids := make([]string, len(ideas))
	for i, idea := range ideas {
		ids[i] = idea.ID
	}
	wins := s.engine.SimulateWinProbs(ids)

	results := make([]model.SimulationResult, 0, len(ideas))
	for _, idea := range ideas {
		res := s.simulateIdea(ctx, idea, personas)
		res.WinProb = wins[idea.ID]
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) simulateIdea(ctx context.Context, idea model.Idea, personas []model.Persona) model.SimulationResult {
	ctx, span := tracer.Start(ctx, "simulate.idea")
	span.SetAttributes(attribute.String("idea.id", idea.ID), attribute.Int("personas", len(personas)))
	defer span.End()

	reactions := make([]model.PersonaReaction, 0, len(personas))
	intents := make([]float64, 0, len(personas))
	prices := make([]float64, 0, len(personas))
	for _, p := range personas {
		payload := s.adapter.CallJSON(ctx, insight.JSONCall{
			System:      personaSystemPrompt,
			User:        buildPersonaPrompt(idea, p),
			Fallback:    personaFallback(),
			Temperature: 0.6,
			MaxTokens:   220,
			Key:         insight.NewKey("persona-reaction", idea.ID, idea.UpdatedAt, p.ID),
		})
		in := insight.ToInsight(payload)
		comment := strings.TrimSpace(in.Comment)
		if comment == "" {
			comment = strings.TrimSpace(in.Reaction)
		}
		r := model.PersonaReaction{
			PersonaID:       p.ID,
			PersonaName:     p.Name,
			Category:        p.Category,
			Comment:         comment,
			IntentToTry:     statkit.Round(statkit.Bounded(in.IntentToTry, 0, 1), 4),
			PriceAcceptance: statkit.Round(statkit.Bounded(in.PriceAcceptance, 0, 1), 4),
		}
		reactions = append(reactions, r)
		intents = append(intents, r.IntentToTry)
		prices = append(prices, r.PriceAcceptance)
	}

	return model.SimulationResult{
		IdeaID:           idea.ID,
		IdeaTitle:        idea.Title,
		ProjectID:        idea.ProjectID,
		Version:          idea.Version,
		PSF:              statkit.Round(100*statkit.Mean(intents), 1),
		PMF:              statkit.Round(100*statkit.Mean(prices), 1),
		CI95:             statkit.ConfidenceInterval95(prices),
		PersonaReactions: reactions,
		SummaryComment:   s.summarize(ctx, idea, reactions),
	}
}

func (s *Service) summarize(ctx context.Context, idea model.Idea, reactions []model.PersonaReaction) string {
	comments := make([]string, 0, maxSummaryComments)
	for _, r := range reactions {
		if r.Comment == "" {
			continue
		}
		comments = append(comments, r.Comment)
		if len(comments) == maxSummaryComments {
			break
		}
	}
	if len(comments) == 0 {
		return insufficientComments
	}
	return s.adapter.CallText(ctx, insight.TextCall{
		System:      summarySystemPrompt,
		User:        buildSummaryPrompt(idea, comments),
		Fallback:    insufficientComments,
		Temperature: 0.3,
		MaxTokens:   200,
		Key:         insight.NewKey("summary", idea.ID, revision(idea), commentsDigest(comments)),
	})
}

// Score runs the single-shot reaction for each resolvable idea and records it
// as a reaction from the scoring persona.
func (s *Service) Score(ctx context.Context, ideaIDs []string) ([]ScoredIdea, error) {
	ideas, err := s.resolve(ctx, ideaIDs)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredIdea, 0, len(ideas))
	for _, idea := range ideas {
		in := insight.ToInsight(s.adapter.React(ctx, idea))
		score, contribution := s.engine.ComputeScore(idea.ID, in, idea.ProjectID, idea.Version)
		reaction, err := s.store.CreateReaction(ctx, model.Reaction{
			IdeaID:      idea.ID,
			ProjectID:   idea.ProjectID,
			Version:     idea.Version,
			PersonaID:   scorePersonaID,
			Text:        in.Reaction,
			Likelihood:  score.PApply.High,
			IntentToTry: statkit.Bounded(in.IntentToTry, 0, 1),
			Segment:     idea.Target,
		})
		if err != nil {
			return nil, fmt.Errorf("record reaction for %s: %w", idea.ID, err)
		}
		out = append(out, ScoredIdea{Idea: idea, Insight: in, Score: score, Contribution: contribution, Reaction: reaction})
	}
	return out, nil
}

// Assess scores one idea without recording a reaction.
func (s *Service) Assess(ctx context.Context, ideaID string) (ScoredIdea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return ScoredIdea{}, err
	}
	in := insight.ToInsight(s.adapter.React(ctx, idea))
	score, contribution := s.engine.ComputeScore(idea.ID, in, idea.ProjectID, idea.Version)
	return ScoredIdea{Idea: idea, Insight: in, Score: score, Contribution: contribution}, nil
}

func (s *Service) resolve(ctx context.Context, ids []string) ([]model.Idea, error) {
	ideas := make([]model.Idea, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		idea, err := s.store.GetIdea(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get idea %s: %w", id, err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

func revision(idea model.Idea) string {
	if idea.Version != "" {
		return idea.Version
	}
	return idea.UpdatedAt
}

func commentsDigest(comments []string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(comments, "\n")), 16)
}
