package model

import (
	"encoding/json"
	"fmt"
)

type PersonaCategory string

const (
	CategoryEnterpriseDecider PersonaCategory = "大企業決裁者"
	CategoryVC                PersonaCategory = "VC"
	CategoryStartupDecider    PersonaCategory = "スタートアップ決裁者"
	CategoryDesigner          PersonaCategory = "デザイナー"
	CategoryStudent           PersonaCategory = "学生"
	CategoryHomemaker         PersonaCategory = "主婦"
)

func ValidCategory(c PersonaCategory) bool {
	switch c {
	case CategoryEnterpriseDecider, CategoryVC, CategoryStartupDecider, CategoryDesigner, CategoryStudent, CategoryHomemaker:
		return true
	default:
		return false
	}
}

type Verdict string

const (
	VerdictGo      Verdict = "Go"
	VerdictImprove Verdict = "Improve"
	VerdictKill    Verdict = "Kill"
)

type Project struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	CreatedAt string `json:"createdAt" db:"created_at"`
	UpdatedAt string `json:"updatedAt" db:"updated_at"`
}

type IdeaCreate struct {
	ProjectID  string `json:"projectId"`
	Version    string `json:"version,omitempty"`
	Title      string `json:"title"`
	Target     string `json:"target"`
	Pain       string `json:"pain"`
	Solution   string `json:"solution"`
	Price      int    `json:"price"`
	Channel    string `json:"channel"`
	Onboarding string `json:"onboarding"`
}

type Idea struct {
	ID         string `json:"id" db:"id" yaml:"id"`
	ProjectID  string `json:"projectId" db:"project_id" yaml:"projectId"`
	Version    string `json:"version,omitempty" db:"version" yaml:"version"`
	Title      string `json:"title" db:"title" yaml:"title"`
	Target     string `json:"target" db:"target" yaml:"target"`
	Pain       string `json:"pain" db:"pain" yaml:"pain"`
	Solution   string `json:"solution" db:"solution" yaml:"solution"`
	Price      int    `json:"price" db:"price" yaml:"price"`
	Channel    string `json:"channel" db:"channel" yaml:"channel"`
	Onboarding string `json:"onboarding" db:"onboarding" yaml:"onboarding"`
	CreatedAt  string `json:"createdAt" db:"created_at" yaml:"-"`
	UpdatedAt  string `json:"updatedAt" db:"updated_at" yaml:"-"`
}

type PersonaCreate struct {
	Name         string             `json:"name" yaml:"name"`
	Category     PersonaCategory    `json:"category" yaml:"category"`
	Age          *int               `json:"age,omitempty" yaml:"age"`
	Gender       string             `json:"gender,omitempty" yaml:"gender"`
	Background   string             `json:"background,omitempty" yaml:"background"`
	Traits       map[string]float64 `json:"traits,omitempty" yaml:"traits"`
	CommentStyle string             `json:"comment_style,omitempty" yaml:"commentStyle"`
}

type Persona struct {
	ID string `json:"id"`
	PersonaCreate
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type Reaction struct {
	ID          string  `json:"id" db:"id"`
	IdeaID      string  `json:"ideaId" db:"idea_id"`
	ProjectID   string  `json:"projectId" db:"project_id"`
	Version     string  `json:"version,omitempty" db:"version"`
	PersonaID   string  `json:"personaId" db:"persona_id"`
	Text        string  `json:"text" db:"text"`
	Likelihood  float64 `json:"likelihood" db:"likelihood"`
	IntentToTry float64 `json:"intent_to_try" db:"intent_to_try"`
	Segment     string  `json:"segment,omitempty" db:"segment"`
	CreatedAt   string  `json:"createdAt" db:"created_at"`
}

// Insight is the normalized sentiment payload for one idea (and optionally one persona).
// Trend and Credibility are nil when the LLM did not supply them.
type Insight struct {
	Reaction        string   `json:"reaction,omitempty"`
	Comment         string   `json:"comment,omitempty"`
	IntentToTry     float64  `json:"intent_to_try"`
	PriceAcceptance float64  `json:"price_acceptance"`
	FrictionHint    float64  `json:"friction_hint"`
	Trend           *float64 `json:"trend,omitempty"`
	Credibility     *float64 `json:"credibility,omitempty"`
}

type CI struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Range is a probability interval serialized as a [low, high] pair.
type Range struct {
	Low  float64
	High float64
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Low, r.High})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("range must have exactly 2 values, got %d", len(pair))
	}
	r.Low, r.High = pair[0], pair[1]
	return nil
}

type Score struct {
	IdeaID    string  `json:"ideaId"`
	ProjectID string  `json:"projectId,omitempty"`
	Version   string  `json:"version,omitempty"`
	PSF       float64 `json:"psf"`
	PMF       float64 `json:"pmf"`
	CI95      CI      `json:"ci95"`
	PApply    Range   `json:"p_apply"`
	PPurchase Range   `json:"p_purchase"`
	PD7       Range   `json:"p_d7"`
	Verdict   Verdict `json:"verdict"`
}

type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type Contribution struct {
	IdeaID    string   `json:"ideaId"`
	ProjectID string   `json:"projectId,omitempty"`
	Version   string   `json:"version,omitempty"`
	Factors   []Factor `json:"factors"`
}

type PersonaReaction struct {
	PersonaID       string          `json:"personaId"`
	PersonaName     string          `json:"personaName"`
	Category        PersonaCategory `json:"category"`
	Comment         string          `json:"comment"`
	IntentToTry     float64         `json:"intent_to_try"`
	PriceAcceptance float64         `json:"price_acceptance"`
}

type SimulationResult struct {
	IdeaID           string            `json:"ideaId"`
	IdeaTitle        string            `json:"ideaTitle"`
	ProjectID        string            `json:"projectId"`
	Version          string            `json:"version,omitempty"`
	PSF              float64           `json:"psf"`
	PMF              float64           `json:"pmf"`
	CI95             CI                `json:"ci95"`
	WinProb          float64           `json:"winProb"`
	PersonaReactions []PersonaReaction `json:"personaReactions"`
	SummaryComment   string            `json:"summaryComment"`
}
