package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stageRow struct {
	StageName        string `json:"stage_name"`
	StageOrder       int    `json:"stage_order"`
	IsRequired       bool   `json:"is_required"`
	BaseCapabilities any    `json:"base_capabilities"`
}

func sortStageRows(rows []stageRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].StageOrder != rows[j].StageOrder {
			return rows[i].StageOrder < rows[j].StageOrder
		}
		return rows[i].StageName < rows[j].StageName
	})
}

// templateStagesDiff reports the template stage list change, if any.
func (s *Service) templateStagesDiff(ctx context.Context, db *gorm.DB, res *resolved) (*domain.FieldDiff, error) {
	if !res.stagesSet {
		return nil, nil
	}

	before := []stageRow{}
	if res.existing != nil {
		views, err := s.repo.ListTemplateStages(ctx, db, res.existingID)
		if err != nil {
			return nil, err
		}
		for _, v := range views {
			var caps any
			if len(v.BaseCapabilities) > 0 {
				if err := decodeJSON(v.BaseCapabilities, &caps); err != nil {
					return nil, err
				}
			}
			before = append(before, stageRow{StageName: v.StageName, StageOrder: v.StageOrder, IsRequired: v.IsRequired, BaseCapabilities: caps})
		}
	}

	after := make([]stageRow, 0, len(res.stages))
	for _, st := range res.stages {
		caps := st.caps
		if text, ok := caps.(string); ok && text == "" {
			caps = nil
		}
		after = append(after, stageRow{StageName: st.name, StageOrder: st.order, IsRequired: st.required, BaseCapabilities: caps})
	}

	sortStageRows(before)
	sortStageRows(after)
	if jsonText(before) == jsonText(after) {
		return nil, nil
	}
	return &domain.FieldDiff{Old: before, New: after}, nil
}

// replaceTemplateStages writes the stage list of a template.
func (s *Service) replaceTemplateStages(ctx context.Context, tx *gorm.DB, templateID int64, res *resolved) error {
	rows := make([]catalog.TemplateStage, 0, len(res.stages))
	for _, st := range res.stages {
		stageID, found, err := s.repo.FindIDByName(ctx, tx, catalog.EntityProcessStages, st.name)
		if err != nil {
			return err
		}
		if !found {
			return &domain.UnresolvedError{Missing: []domain.MissingReference{{Field: "stages", Key: "stage_name", Value: st.name}}}
		}

		row := catalog.TemplateStage{TemplateID: templateID, StageID: stageID, StageOrder: st.order, IsRequired: st.required}
		caps := st.caps
		if text, ok := caps.(string); ok {
			if text == "" {
				caps = nil
			} else if json.Valid([]byte(text)) {
				caps = json.RawMessage(text)
			}
		}
		if caps != nil {
			raw, err := json.Marshal(caps)
			if err != nil {
				return fmt.Errorf("%w: base_capabilities of %s: %v", errInvalidValue, st.name, err)
			}
			row.BaseCapabilities = datatypes.JSON(raw)
		}
		rows = append(rows, row)
	}
	return s.repo.ReplaceTemplateStages(ctx, tx, templateID, rows)
}
