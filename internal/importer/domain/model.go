package domain

import (
	"time"
)

// EntityType names an importable record kind.
type EntityType string

const (
	EntityUsers              EntityType = "users"
	EntityModalities         EntityType = "modalities"
	EntityProcessStages      EntityType = "process_stages"
	EntityCapabilities       EntityType = "manufacturing_capabilities"
	EntityManufacturingUnits EntityType = "manufacturing_entities"
	EntityFacilities         EntityType = "internal_facilities"
	EntityPartners           EntityType = "external_partners"
	EntityTemplates          EntityType = "process_templates"
	EntityProducts           EntityType = "products"
	EntityIndications        EntityType = "indications"
	EntityTechnologies       EntityType = "manufacturing_technologies"
	EntityChallenges         EntityType = "manufacturing_challenges"
	EntitySupplyChain        EntityType = "supply_chain"
	EntityModalityChallenges EntityType = "modality_challenges"
	EntityTimelines          EntityType = "product_timelines"
	EntityFilings            EntityType = "product_regulatory_filings"
	EntitySuppliers          EntityType = "product_manufacturing_suppliers"
)

type Status string

const (
	StatusNew             Status = "new"
	StatusUpdate          Status = "update"
	StatusNoChange        Status = "no_change"
	StatusNeedsResolution Status = "needs_resolution"
	StatusError           Status = "error"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

type FieldDiff struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// LinkDiff is the change to a junction collection, by name.
type LinkDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// MissingReference is a name the resolver could not bind.
type MissingReference struct {
	// Field is the input key carrying the name, e.g. modality_names.
	Field string `json:"field"`
	// Key is the natural-key field of the referenced entity, e.g. modality_name.
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entry is the analyzed plan for one input record.
type Entry struct {
	Index      int                  `json:"index"`
	Entity     EntityType           `json:"entity_type"`
	Status     Status               `json:"status"`
	Action     Action               `json:"action"`
	Identifier string               `json:"identifier"`
	Input      map[string]any       `json:"json_item"`
	DBItem     map[string]any       `json:"db_item"`
	Diff       map[string]FieldDiff `json:"diff"`
	LinkDiff   map[string]LinkDiff  `json:"link_diff,omitempty"`
	Missing    []MissingReference   `json:"missing,omitempty"`
	Messages   []string             `json:"messages"`
}

type Suggestion struct {
	Name string `json:"name"`
	// Ratio is the similarity in percent.
	Ratio int `json:"ratio"`
}

// State is the analyzed plan held between analyze and finalize.
type State struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
	// MissingKeys maps key field -> missing value -> suggestions.
	MissingKeys map[string]map[string][]Suggestion `json:"missing_keys"`
}

type Summary struct {
	Total           int `json:"total"`
	New             int `json:"new"`
	Update          int `json:"update"`
	NoChange        int `json:"no_change"`
	NeedsResolution int `json:"needs_resolution"`
	Error           int `json:"error"`
}

func (s *State) Summary() Summary {
	out := Summary{Total: len(s.Entries)}
	for _, e := range s.Entries {
		switch e.Status {
		case StatusNew:
			out.New++
		case StatusUpdate:
			out.Update++
		case StatusNoChange:
			out.NoChange++
		case StatusNeedsResolution:
			out.NeedsResolution++
		case StatusError:
			out.Error++
		}
	}
	return out
}

type ResolutionType string

const (
	ResolutionUseExisting ResolutionType = "use_existing"
	ResolutionCreateNew   ResolutionType = "create_new"
	ResolutionSkip        ResolutionType = "skip"
)

// Resolution is the user's answer for one missing value.
type Resolution struct {
	Type ResolutionType `json:"type"`
	// Value is the existing name to use, or the name of the row to create.
	Value    string         `json:"value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Decisions annotate a state before it is re-analyzed or finalized.
type Decisions struct {
	// Resolutions maps key field -> missing value -> resolution.
	Resolutions map[string]map[string]Resolution `json:"resolutions"`
	// Actions overrides the action of entries by index.
	Actions map[int]Action `json:"actions"`
}

type EntryError struct {
	Identifier string     `json:"identifier"`
	Entity     EntityType `json:"entity_type"`
	Message    string     `json:"message"`
}

// Report is the outcome of a finalize run.
type Report struct {
	RunID string `json:"run_id"`
	// Success is false only when a critical failure stopped the run.
	Success      bool         `json:"success"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	SkippedCount int          `json:"skipped_count"`
	Added        int          `json:"added"`
	Updated      int          `json:"updated"`
	Errors       []EntryError `json:"errors"`
	DetailedLogs []string     `json:"detailed_logs"`
}
