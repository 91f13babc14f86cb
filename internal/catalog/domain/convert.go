package domain

import (
	"bytes"
	"encoding/json"
)

// ToMap renders a model as a column-keyed map. Numbers stay json.Number so
// 64-bit ids survive.
func ToMap(model any) (map[string]any, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode overlays column values onto dest. Fields absent from values keep
// their current value.
func Decode(values map[string]any, dest any) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// ToMaps renders a slice (or pointer to slice) of models.
func ToMaps(models any) ([]map[string]any, error) {
	raw, err := json.Marshal(models)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out, nil
}
