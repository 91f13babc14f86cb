package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const BackupMetaKey = "_meta"

// RequiredBackupTables must be present in every restorable backup.
var RequiredBackupTables = []string{"users", "products", "modalities"}

type BackupMeta struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Schema     string    `json:"schema"`
	Tables     []string  `json:"tables"`
}

// Backup is a whole-database snapshot: one row list per table plus an
// optional _meta object.
type Backup struct {
	Tables map[string][]map[string]any
	Meta   *BackupMeta
}

func (b Backup) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Tables)+1)
	for table, rows := range b.Tables {
		out[table] = rows
	}
	if b.Meta != nil {
		out[BackupMetaKey] = b.Meta
	}
	return json.Marshal(out)
}

func (b *Backup) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: backup must be a JSON object: %v", ErrInvalidInput, err)
	}

	b.Tables = make(map[string][]map[string]any, len(raw))
	for key, value := range raw {
		if key == BackupMetaKey {
			var meta BackupMeta
			if err := json.Unmarshal(value, &meta); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidInput, BackupMetaKey, err)
			}
			b.Meta = &meta
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return fmt.Errorf("%w: table %s must be a list of objects", ErrInvalidInput, key)
		}
		b.Tables[key] = rows
	}
	return nil
}
