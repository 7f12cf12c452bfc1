package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joelkehle/ideafit/internal/model"
)

const maxSimulationIdeas = 3

type fieldErrors []string

func (f *fieldErrors) add(format string, args ...any) {
	*f = append(*f, fmt.Sprintf(format, args...))
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return errors.New(strings.Join(f, "; "))
}

// length bounds count characters, not bytes; max <= 0 means unbounded.
func (f *fieldErrors) length(field, v string, min, max int) {
	n := utf8.RuneCountInString(v)
	if n < min {
		f.add("%s must be at least %d characters", field, min)
	}
	if max > 0 && n > max {
		f.add("%s must be at most %d characters", field, max)
	}
}

type projectRequest struct {
	Name string `json:"name"`
}

func (p projectRequest) validate() error {
	var fe fieldErrors
	fe.length("name", p.Name, 2, 128)
	return fe.err()
}

type ideaRequest struct {
	ProjectID  string `json:"projectId"`
	Version    string `json:"version"`
	Title      string `json:"title"`
	Target     string `json:"target"`
	Pain       string `json:"pain"`
	Solution   string `json:"solution"`
	Price      *int   `json:"price"`
	Channel    string `json:"channel"`
	Onboarding string `json:"onboarding"`
}

func (i ideaRequest) validate() (model.IdeaCreate, error) {
	var fe fieldErrors
	fe.length("projectId", i.ProjectID, 2, 64)
	fe.length("version", i.Version, 0, 16)
	fe.length("title", i.Title, 2, 160)
	fe.length("target", i.Target, 2, 160)
	fe.length("pain", i.Pain, 2, 0)
	fe.length("solution", i.Solution, 2, 0)
	fe.length("channel", i.Channel, 2, 0)
	fe.length("onboarding", i.Onboarding, 2, 0)
	switch {
	case i.Price == nil:
		fe.add("price is required")
	case *i.Price < 0:
		fe.add("price must be >= 0")
	}
	if err := fe.err(); err != nil {
		return model.IdeaCreate{}, err
	}
	return model.IdeaCreate{
		ProjectID:  i.ProjectID,
		Version:    i.Version,
		Title:      i.Title,
		Target:     i.Target,
		Pain:       i.Pain,
		Solution:   i.Solution,
		Price:      *i.Price,
		Channel:    i.Channel,
		Onboarding: i.Onboarding,
	}, nil
}

func validatePersona(p model.PersonaCreate) error {
	var fe fieldErrors
	fe.length("name", p.Name, 1, 120)
	if !model.ValidCategory(p.Category) {
		fe.add("category %q is not a known persona category", p.Category)
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 120) {
		fe.add("age must be between 0 and 120")
	}
	fe.length("gender", p.Gender, 0, 40)
	fe.length("background", p.Background, 0, 400)
	fe.length("comment_style", p.CommentStyle, 0, 60)
	return fe.err()
}

type idsRequest struct {
	IdeaIDs []string `json:"ideaIds"`
	// Filters is accepted for compatibility and not applied.
	Filters map[string]any `json:"filters,omitempty"`
}
