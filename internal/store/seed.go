package store

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/ideafit/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

type seedDoc struct {
	Projects []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"projects"`
	Ideas    []model.Idea `yaml:"ideas"`
	Personas []struct {
		ID                  string `yaml:"id"`
		model.PersonaCreate `yaml:",inline"`
	} `yaml:"personas"`
	Reactions []struct {
		ID          string  `yaml:"id"`
		IdeaID      string  `yaml:"ideaId"`
		ProjectID   string  `yaml:"projectId"`
		Version     string  `yaml:"version"`
		PersonaID   string  `yaml:"personaId"`
		Text        string  `yaml:"text"`
		Likelihood  float64 `yaml:"likelihood"`
		IntentToTry float64 `yaml:"intentToTry"`
		Segment     string  `yaml:"segment"`
	} `yaml:"reactions"`
}

// Seed loads the bundled demo data. It is a no-op once any project exists.
func (s *SQLStore) Seed(ctx context.Context) error {
	var doc seedDoc
	if err := yaml.Unmarshal(seedYAML, &doc); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	return s.seed(ctx, doc)
}

func (s *SQLStore) seed(ctx context.Context, doc seedDoc) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM projects`); err != nil {
		return fmt.Errorf("count projects: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	for _, p := range doc.Projects {
		if err := ensureProject(ctx, tx, p.ID, p.Name, now); err != nil {
			return err
		}
	}
	for _, idea := range doc.Ideas {
		idea.CreatedAt, idea.UpdatedAt = now, now
		if err := insertIdea(ctx, tx, idea); err != nil {
			return err
		}
	}
	for _, p := range doc.Personas {
		persona := model.Persona{ID: p.ID, PersonaCreate: p.PersonaCreate, CreatedAt: now, UpdatedAt: now}
		if err := insertPersona(ctx, tx, persona); err != nil {
			return err
		}
	}
	for _, r := range doc.Reactions {
		err := insertReaction(ctx, tx, model.Reaction{
			ID:          r.ID,
			IdeaID:      r.IdeaID,
			ProjectID:   r.ProjectID,
			Version:     r.Version,
			PersonaID:   r.PersonaID,
			Text:        r.Text,
			Likelihood:  r.Likelihood,
			IntentToTry: r.IntentToTry,
			Segment:     r.Segment,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	slog.Info("seed data initialised", "projects", len(doc.Projects), "ideas", len(doc.Ideas), "personas", len(doc.Personas))
	return nil
}
