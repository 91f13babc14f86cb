package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	"github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    catalog.Repository
	Config  *config.ImportConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    catalog.Repository
	config  *config.ImportConfigHolder
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("traceability.service"),
		repo:    p.Repo,
		config:  p.Config,
		metrics: p.Metrics,
		tracer:  otel.Tracer("pipelineintel/traceability"),
	}
}

func (s *Service) Trace(ctx context.Context, req domain.TraceRequest) (*domain.Trace, error) {
	ctx, span := s.tracer.Start(ctx, "traceability.trace")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("trace.modality_id", req.ModalityID),
		attribute.Int64("trace.template_id", req.TemplateID),
	)

	db := s.db.WithContext(ctx)
	var modality catalog.Modality
	if err := s.mustFind(ctx, db, catalog.EntityModalities, req.ModalityID, &modality); err != nil {
		return nil, err
	}
	var template catalog.ProcessTemplate
	if err := s.mustFind(ctx, db, catalog.EntityProcessTemplates, req.TemplateID, &template); err != nil {
		return nil, err
	}

	templateStages, err := s.repo.ListTemplateStages(ctx, db, template.TemplateID)
	if err != nil {
		return nil, err
	}
	allStages, err := s.repo.ListStages(ctx, db)
	if err != nil {
		return nil, err
	}
	tree := newStageTree(allStages)

	phases := make([]*domain.Phase, 0)
	byRoot := map[int64]*domain.Phase{}
	for _, ts := range templateStages {
		techs, err := s.visibleTechnologies(ctx, db, ts.StageID, modality.ModalityID, template.TemplateID, req.ChallengeID)
		if err != nil {
			return nil, err
		}
		if req.ChallengeID != 0 && len(techs) == 0 {
			continue
		}

		root := tree.root(ts.StageID)
		phase, ok := byRoot[root.StageID]
		if !ok {
			phase = &domain.Phase{ID: root.StageID, Name: root.StageName, Stages: []domain.Stage{}}
			byRoot[root.StageID] = phase
			phases = append(phases, phase)
		}
		phase.Stages = append(phase.Stages, domain.Stage{
			ID:           ts.StageID,
			Name:         ts.StageName,
			Order:        ts.StageOrder,
			IsRequired:   ts.IsRequired,
			Technologies: techs,
		})
	}

	rank := phaseRank(s.config.Get().PhaseOrder)
	sort.SliceStable(phases, func(i, j int) bool {
		return rank(phases[i].Name) < rank(phases[j].Name)
	})

	out := &domain.Trace{
		Modality: domain.Option{ID: modality.ModalityID, Name: modality.ModalityName},
		Template: domain.Option{ID: template.TemplateID, Name: template.TemplateName},
		Phases:   make([]domain.Phase, 0, len(phases)),
	}
	for _, p := range phases {
		out.Phases = append(out.Phases, *p)
	}

	s.metrics.RecordTraceQuery(ctx, "trace")
	s.log.Debug("trace built",
		zap.Int64("modality_id", modality.ModalityID),
		zap.Int64("template_id", template.TemplateID),
		zap.Int("phases", len(out.Phases)),
	)
	return out, nil
}

// visibleTechnologies applies the three-tier rule to the technologies of
// one stage: template-specific, modality-specific or generic.
func (s *Service) visibleTechnologies(ctx context.Context, db *gorm.DB, stageID, modalityID, templateID, challengeID int64) ([]domain.Technology, error) {
	techs, err := s.repo.ListTechnologiesOfStage(ctx, db, stageID)
	if err != nil {
		return nil, err
	}

	out := []domain.Technology{}
	for _, tech := range techs {
		modalityIDs, err := s.repo.ListTechnologyModalityIDs(ctx, db, tech.TechnologyID)
		if err != nil {
			return nil, err
		}
		scope, ok := scopeOf(tech, modalityIDs, modalityID, templateID)
		if !ok {
			continue
		}

		challenges, err := s.repo.ListChallengesOfTechnology(ctx, db, tech.TechnologyID)
		if err != nil {
			return nil, err
		}
		if challengeID != 0 && !hasChallenge(challenges, challengeID) {
			continue
		}
		items := make([]domain.Challenge, 0, len(challenges))
		for _, c := range challenges {
			items = append(items, challengeOf(c))
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })

		out = append(out, domain.Technology{ID: tech.TechnologyID, Name: tech.TechnologyName, Scope: scope, Challenges: items})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func scopeOf(tech catalog.ManufacturingTechnology, modalityIDs []int64, modalityID, templateID int64) (domain.Scope, bool) {
	if tech.TemplateID != nil && *tech.TemplateID == templateID {
		return domain.ScopeTemplate, true
	}
	if len(modalityIDs) == 0 {
		return domain.ScopeGeneric, true
	}
	for _, id := range modalityIDs {
		if id == modalityID {
			return domain.ScopeModality, true
		}
	}
	return "", false
}

func hasChallenge(challenges []catalog.ManufacturingChallenge, id int64) bool {
	for _, c := range challenges {
		if c.ChallengeID == id {
			return true
		}
	}
	return false
}

func challengeOf(c catalog.ManufacturingChallenge) domain.Challenge {
	return domain.Challenge{
		ID:            c.ChallengeID,
		Name:          c.ChallengeName,
		Category:      c.ChallengeCategory,
		SeverityLevel: c.SeverityLevel,
	}
}

// phaseRank orders known root phases as configured and the rest after them.
func phaseRank(order []string) func(string) int {
	known := make(map[string]int, len(order))
	for i, name := range order {
		known[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return func(name string) int {
		if i, ok := known[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i
		}
		return len(order)
	}
}

func (s *Service) EffectiveChallenges(ctx context.Context, productID int64) (*domain.EffectiveChallenges, error) {
	db := s.db.WithContext(ctx)
	var product catalog.Product
	if err := s.mustFind(ctx, db, catalog.EntityProducts, productID, &product); err != nil {
		return nil, err
	}

	byID := map[int64]*domain.EffectiveChallenge{}
	add := func(c domain.Challenge, source domain.Source, notes *string) {
		if current, ok := byID[c.ID]; ok && sourceRank(current.Source) >= sourceRank(source) {
			return
		}
		byID[c.ID] = &domain.EffectiveChallenge{Challenge: c, Source: source, Notes: notes}
	}

	if product.ModalityID != nil {
		typical, err := s.repo.ListTypicalChallengesOfModality(ctx, db, *product.ModalityID)
		if err != nil {
			return nil, err
		}
		for _, c := range typical {
			add(challengeOf(c), domain.SourceModality, nil)
		}
	}

	techs, err := s.repo.ListTechnologiesOfProduct(ctx, db, product.ProductID)
	if err != nil {
		return nil, err
	}
	for _, tech := range techs {
		challenges, err := s.repo.ListChallengesOfTechnology(ctx, db, tech.TechnologyID)
		if err != nil {
			return nil, err
		}
		for _, c := range challenges {
			add(challengeOf(c), domain.SourceTechnology, nil)
		}
	}

	links, err := s.repo.ListProductChallenges(ctx, db, product.ProductID, "")
	if err != nil {
		return nil, err
	}
	excluded := []domain.EffectiveChallenge{}
	for _, link := range links {
		c := domain.Challenge{
			ID:            link.ChallengeID,
			Name:          link.ChallengeName,
			Category:      link.ChallengeCategory,
			SeverityLevel: link.SeverityLevel,
		}
		switch link.RelationshipType {
		case catalog.RelationshipExplicit:
			add(c, domain.SourceExplicit, link.Notes)
		case catalog.RelationshipExcluded:
			excluded = append(excluded, domain.EffectiveChallenge{Challenge: c, Source: domain.SourceExplicit, Notes: link.Notes})
		}
	}
	for _, e := range excluded {
		delete(byID, e.ID)
	}

	out := &domain.EffectiveChallenges{
		ProductID:   product.ProductID,
		ProductCode: product.ProductCode,
		Challenges:  make([]domain.EffectiveChallenge, 0, len(byID)),
		Excluded:    excluded,
	}
	for _, c := range byID {
		out.Challenges = append(out.Challenges, *c)
	}
	sort.Slice(out.Challenges, func(i, j int) bool {
		if out.Challenges[i].Name != out.Challenges[j].Name {
			return out.Challenges[i].Name < out.Challenges[j].Name
		}
		return out.Challenges[i].ID < out.Challenges[j].ID
	})

	s.metrics.RecordTraceQuery(ctx, "effective")
	return out, nil
}

// sourceRank decides which tag wins when a challenge arrives twice.
func sourceRank(source domain.Source) int {
	switch source {
	case domain.SourceExplicit:
		return 3
	case domain.SourceModality:
		return 2
	case domain.SourceTechnology:
		return 1
	}
	return 0
}

func (s *Service) AvailableFilters(ctx context.Context) (*domain.Filters, error) {
	db := s.db.WithContext(ctx)
	out := &domain.Filters{}

	var err error
	if out.Modalities, err = s.options(ctx, db, catalog.EntityModalities); err != nil {
		return nil, err
	}
	if out.Templates, err = s.options(ctx, db, catalog.EntityProcessTemplates); err != nil {
		return nil, err
	}
	if out.Challenges, err = s.options(ctx, db, catalog.EntityChallenges); err != nil {
		return nil, err
	}

	s.metrics.RecordTraceQuery(ctx, "filters")
	return out, nil
}

// options lists id and name of every row of a named entity, by name.
func (s *Service) options(ctx context.Context, db *gorm.DB, entity catalog.Entity) ([]domain.Option, error) {
	meta, err := catalog.MetaOf(entity)
	if err != nil {
		return nil, err
	}
	rows := meta.NewSlice()
	if err := s.repo.List(ctx, db, entity, rows); err != nil {
		return nil, err
	}
	items, err := catalog.ToMaps(rows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Option, 0, len(items))
	for _, item := range items {
		id, err := idOf(item[meta.PK])
		if err != nil {
			return nil, err
		}
		name, _ := item[meta.Name].(string)
		out = append(out, domain.Option{ID: id, Name: name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) TemplatesByModality(ctx context.Context, modalityID int64) ([]domain.Option, error) {
	templates, err := s.repo.ListTemplatesByModality(ctx, s.db.WithContext(ctx), modalityID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Option, 0, len(templates))
	for _, t := range templates {
		out = append(out, domain.Option{ID: t.TemplateID, Name: t.TemplateName})
	}
	s.metrics.RecordTraceQuery(ctx, "templates")
	return out, nil
}

func (s *Service) mustFind(ctx context.Context, db *gorm.DB, entity catalog.Entity, id int64, dest any) error {
	found, err := s.repo.FindByID(ctx, db, entity, id, dest)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, entity, id)
	}
	return nil
}
