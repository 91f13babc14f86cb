package service

import (
	"encoding/json"
	"fmt"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
)

type stageTree struct {
	byID map[int64]catalog.ProcessStage
}

func newStageTree(stages []catalog.ProcessStage) *stageTree {
	t := &stageTree{byID: make(map[int64]catalog.ProcessStage, len(stages))}
	for _, s := range stages {
		t.byID[s.StageID] = s
	}
	return t
}

// root climbs the parent chain of id. The walk is bounded by the number of
// stages so a corrupt cycle ends at the last stage seen.
func (t *stageTree) root(id int64) catalog.ProcessStage {
	current, ok := t.byID[id]
	if !ok {
		return catalog.ProcessStage{StageID: id}
	}
	for i := 0; i < len(t.byID) && current.ParentStageID != nil; i++ {
		parent, ok := t.byID[*current.ParentStageID]
		if !ok {
			break
		}
		current = parent
	}
	return current
}

func idOf(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Int64()
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	}
	return 0, fmt.Errorf("unexpected id %v", v)
}
