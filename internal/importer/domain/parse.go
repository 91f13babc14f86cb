package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseImport decodes an import file. With an entity type the top level
// must be a list of objects; without one it must be an object of lists
// keyed by entity type. Numbers are kept as json.Number.
func ParseImport(data []byte, entity EntityType) (AnalyzeRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return AnalyzeRequest{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if strings.TrimSpace(string(entity)) != "" {
		if trimmed[0] != '[' {
			return AnalyzeRequest{}, fmt.Errorf("%w: top level must be a list of objects", ErrInvalidInput)
		}
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return AnalyzeRequest{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return AnalyzeRequest{EntityType: entity, Items: items}, nil
	}

	if trimmed[0] != '{' {
		return AnalyzeRequest{}, fmt.Errorf("%w: a bundle must be an object keyed by entity type", ErrInvalidInput)
	}
	var sections map[EntityType][]map[string]any
	if err := dec.Decode(&sections); err != nil {
		return AnalyzeRequest{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return AnalyzeRequest{Sections: sections}, nil
}
