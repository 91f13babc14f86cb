package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidNodeType = errors.New("invalid_node_type")
)

// Scope explains why a technology is visible for a modality and template.
type Scope string

const (
	ScopeTemplate Scope = "template"
	ScopeModality Scope = "modality"
	ScopeGeneric  Scope = "generic"
)

// Source tags where an effective challenge of a product comes from.
type Source string

const (
	SourceModality   Source = "modality"
	SourceTechnology Source = "technology"
	SourceExplicit   Source = "explicit"
)

type Service interface {
	// Trace builds the phase > stage > technology > challenge tree of a
	// template as seen by a modality.
	Trace(ctx context.Context, req TraceRequest) (*Trace, error)
	EffectiveChallenges(ctx context.Context, productID int64) (*EffectiveChallenges, error)
	AvailableFilters(ctx context.Context) (*Filters, error)
	TemplatesByModality(ctx context.Context, modalityID int64) ([]Option, error)
	NodeDetails(ctx context.Context, nodeType string, id int64) (map[string]any, error)
}

type TraceRequest struct {
	ModalityID int64 `form:"modality_id" json:"modality_id"`
	TemplateID int64 `form:"template_id" json:"template_id"`
	// ChallengeID keeps only the branches that lead to this challenge.
	ChallengeID int64 `form:"challenge_id" json:"challenge_id"`
}

type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Trace struct {
	Modality Option  `json:"modality"`
	Template Option  `json:"template"`
	Phases   []Phase `json:"phases"`
}

// Phase is a root process stage grouping the template stages below it.
type Phase struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

type Stage struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Order        int          `json:"stage_order"`
	IsRequired   bool         `json:"is_required"`
	Technologies []Technology `json:"technologies"`
}

type Technology struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Scope      Scope       `json:"scope"`
	Challenges []Challenge `json:"challenges"`
}

type Challenge struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Category      *string `json:"category"`
	SeverityLevel *string `json:"severity_level"`
}

type EffectiveChallenge struct {
	Challenge
	Source Source  `json:"source"`
	Notes  *string `json:"notes,omitempty"`
}

// EffectiveChallenges lists what applies to a product, plus what the
// product explicitly excludes.
type EffectiveChallenges struct {
	ProductID   int64                `json:"product_id"`
	ProductCode string               `json:"product_code"`
	Challenges  []EffectiveChallenge `json:"challenges"`
	Excluded    []EffectiveChallenge `json:"excluded"`
}

type Filters struct {
	Modalities []Option `json:"modalities"`
	Templates  []Option `json:"templates"`
	Challenges []Option `json:"challenges"`
}
