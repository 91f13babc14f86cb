package service

import (
	"context"
	"fmt"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/traceability/domain"
)

// NodeDetails summarises one node of the traceability tree.
func (s *Service) NodeDetails(ctx context.Context, nodeType string, id int64) (map[string]any, error) {
	db := s.db.WithContext(ctx)
	var details map[string]any

	switch nodeType {
	case "modality":
		var m catalog.Modality
		if err := s.mustFind(ctx, db, catalog.EntityModalities, id, &m); err != nil {
			return nil, err
		}
		templates, err := s.repo.ListTemplatesByModality(ctx, db, id)
		if err != nil {
			return nil, err
		}
		details = map[string]any{
			"name":           m.ModalityName,
			"category":       m.ModalityCategory,
			"description":    m.Description,
			"template_count": len(templates),
		}

	case "template":
		var t catalog.ProcessTemplate
		if err := s.mustFind(ctx, db, catalog.EntityProcessTemplates, id, &t); err != nil {
			return nil, err
		}
		stages, err := s.repo.ListTemplateStages(ctx, db, id)
		if err != nil {
			return nil, err
		}
		modalityName := "N/A"
		if t.ModalityID != nil {
			names, err := s.repo.NamesByIDs(ctx, db, catalog.EntityModalities, []int64{*t.ModalityID})
			if err != nil {
				return nil, err
			}
			if name, ok := names[*t.ModalityID]; ok {
				modalityName = name
			}
		}
		details = map[string]any{
			"name":          t.TemplateName,
			"modality_name": modalityName,
			"stage_count":   len(stages),
		}

	case "stage":
		var st catalog.ProcessStage
		if err := s.mustFind(ctx, db, catalog.EntityProcessStages, id, &st); err != nil {
			return nil, err
		}
		techs, err := s.repo.ListTechnologiesOfStage(ctx, db, id)
		if err != nil {
			return nil, err
		}
		details = map[string]any{
			"name":             st.StageName,
			"category":         st.StageCategory,
			"hierarchy_level":  st.HierarchyLevel,
			"technology_count": len(techs),
		}
		if st.ParentStageID != nil {
			names, err := s.repo.NamesByIDs(ctx, db, catalog.EntityProcessStages, []int64{*st.ParentStageID})
			if err != nil {
				return nil, err
			}
			details["parent_stage_name"] = names[*st.ParentStageID]
		}

	case "technology":
		var tech catalog.ManufacturingTechnology
		if err := s.mustFind(ctx, db, catalog.EntityTechnologies, id, &tech); err != nil {
			return nil, err
		}
		modalityIDs, err := s.repo.ListTechnologyModalityIDs(ctx, db, id)
		if err != nil {
			return nil, err
		}
		names, err := s.repo.NamesByIDs(ctx, db, catalog.EntityModalities, modalityIDs)
		if err != nil {
			return nil, err
		}
		modalities := make([]string, 0, len(modalityIDs))
		for _, mid := range modalityIDs {
			modalities = append(modalities, names[mid])
		}
		challenges, err := s.repo.ListChallengesOfTechnology(ctx, db, id)
		if err != nil {
			return nil, err
		}
		details = map[string]any{
			"name":                 tech.TechnologyName,
			"innovation_potential": tech.InnovationPotential,
			"complexity_rating":    tech.ComplexityRating,
			"modality_names":       modalities,
			"generic":              len(modalityIDs) == 0,
			"challenge_count":      len(challenges),
		}

	case "challenge":
		var c catalog.ManufacturingChallenge
		if err := s.mustFind(ctx, db, catalog.EntityChallenges, id, &c); err != nil {
			return nil, err
		}
		products, err := s.repo.ListChallengeProductIDs(ctx, db, id, catalog.RelationshipExplicit)
		if err != nil {
			return nil, err
		}
		details = map[string]any{
			"name":           c.ChallengeName,
			"category":       c.ChallengeCategory,
			"severity_level": c.SeverityLevel,
			"product_count":  len(products),
		}

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidNodeType, nodeType)
	}

	s.metrics.RecordTraceQuery(ctx, "node_details")
	return details, nil
}
