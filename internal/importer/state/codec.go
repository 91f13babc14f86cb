package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

// encode serializes a state as snappy-compressed JSON.
func encode(state *domain.State) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// decode keeps numbers as json.Number so snowflake ids survive.
func decode(data []byte) (*domain.State, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress import state: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out domain.State
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode import state: %w", err)
	}
	return &out, nil
}
