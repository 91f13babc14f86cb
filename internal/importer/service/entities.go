package service

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// entitySpec describes how one import kind maps onto the catalog.
type entitySpec struct {
	kind   domain.EntityType
	target catalog.Entity
	// keys are the input fields that together identify a record.
	keys []string
	// rank orders finalize writes, parents first.
	rank int
	// alsoNames lists catalog entities that receive the identifier as a
	// name when the record is created.
	alsoNames []catalog.Entity
}

var specs = map[domain.EntityType]*entitySpec{
	domain.EntityUsers:              {kind: domain.EntityUsers, target: catalog.EntityUsers, keys: []string{"username"}, rank: 0},
	domain.EntityModalities:         {kind: domain.EntityModalities, target: catalog.EntityModalities, keys: []string{"modality_name"}, rank: 1},
	domain.EntityProcessStages:      {kind: domain.EntityProcessStages, target: catalog.EntityProcessStages, keys: []string{"stage_name"}, rank: 2},
	domain.EntityCapabilities:       {kind: domain.EntityCapabilities, target: catalog.EntityCapabilities, keys: []string{"capability_name"}, rank: 3},
	domain.EntityManufacturingUnits: {kind: domain.EntityManufacturingUnits, target: catalog.EntityManufacturingEntities, keys: []string{"entity_name"}, rank: 4},
	domain.EntityFacilities: {
		kind: domain.EntityFacilities, target: catalog.EntityInternalFacilities, keys: []string{"facility_code"}, rank: 5,
		alsoNames: []catalog.Entity{catalog.EntityManufacturingEntities},
	},
	domain.EntityPartners: {
		kind: domain.EntityPartners, target: catalog.EntityExternalPartners, keys: []string{"company_name"}, rank: 6,
		alsoNames: []catalog.Entity{catalog.EntityManufacturingEntities},
	},
	domain.EntityTemplates:          {kind: domain.EntityTemplates, target: catalog.EntityProcessTemplates, keys: []string{"template_name"}, rank: 7},
	domain.EntityProducts:           {kind: domain.EntityProducts, target: catalog.EntityProducts, keys: []string{"product_code"}, rank: 8},
	domain.EntityIndications:        {kind: domain.EntityIndications, target: catalog.EntityIndications, keys: []string{"product_code", "indication_name"}, rank: 9},
	domain.EntityTechnologies:       {kind: domain.EntityTechnologies, target: catalog.EntityTechnologies, keys: []string{"technology_name"}, rank: 10},
	domain.EntityChallenges:         {kind: domain.EntityChallenges, target: catalog.EntityChallenges, keys: []string{"challenge_name"}, rank: 11},
	domain.EntitySupplyChain:        {kind: domain.EntitySupplyChain, target: catalog.EntitySupplyChain, keys: []string{"product_code", "manufacturing_stage"}, rank: 12},
	domain.EntityModalityChallenges: {kind: domain.EntityModalityChallenges, target: catalog.EntityModalityChallenges, keys: []string{"modality_name", "challenge_name"}, rank: 13},
	domain.EntityTimelines:          {kind: domain.EntityTimelines, target: catalog.EntityTimelines, keys: []string{"product_code", "milestone_name"}, rank: 14},
	domain.EntityFilings:            {kind: domain.EntityFilings, target: catalog.EntityRegulatoryFilings, keys: []string{"product_code", "agency", "submission_type"}, rank: 15},
	domain.EntitySuppliers:          {kind: domain.EntitySuppliers, target: catalog.EntityManufacturingSuppliers, keys: []string{"product_code", "supply_type", "supplier_name"}, rank: 16},
}

func specOf(kind domain.EntityType) (*entitySpec, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, kind)
	}
	return spec, nil
}

// EntityTypes lists the importable kinds in write order.
func EntityTypes() []domain.EntityType {
	out := make([]domain.EntityType, 0, len(specs))
	for kind := range specs {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return specs[out[i]].rank < specs[out[j]].rank })
	return out
}

// identifier joins the natural-key fields of input. ok is false when any
// of them is empty.
func (s *entitySpec) identifier(input map[string]any) (string, bool) {
	parts := make([]string, 0, len(s.keys))
	for _, key := range s.keys {
		value := strings.TrimSpace(textOf(input[key]))
		if value == "" {
			return "", false
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, " / "), true
}

// name is the catalog name of a named record.
func (s *entitySpec) name(input map[string]any) string {
	return strings.TrimSpace(textOf(input[s.keys[0]]))
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindBool
	kindDate
	kindJSON
	kindTime
)

type columnSet struct {
	pk       string
	writable map[string]fieldKind
}

var (
	schemaCache sync.Map
	columnsMu   sync.Mutex
	columnCache = map[catalog.Entity]*columnSet{}

	dateType = reflect.TypeOf(catalog.Date{})
	jsonType = reflect.TypeOf(datatypes.JSON{})
)

// columnsOf lists the columns an import may write for entity, read from
// the gorm schema of its model.
func columnsOf(entity catalog.Entity) (*columnSet, error) {
	columnsMu.Lock()
	defer columnsMu.Unlock()

	if cols, ok := columnCache[entity]; ok {
		return cols, nil
	}
	meta, err := catalog.MetaOf(entity)
	if err != nil {
		return nil, err
	}
	sch, err := schema.Parse(meta.NewModel(), &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, err
	}

	cols := &columnSet{pk: meta.PK, writable: map[string]fieldKind{}}
	for _, field := range sch.Fields {
		if field.DBName == "" || field.DBName == meta.PK {
			continue
		}
		kind := kindOf(field)
		if kind == kindTime {
			continue
		}
		cols.writable[field.DBName] = kind
	}
	columnCache[entity] = cols
	return cols, nil
}

func kindOf(field *schema.Field) fieldKind {
	switch field.IndirectFieldType {
	case dateType:
		return kindDate
	case jsonType:
		return kindJSON
	}
	switch field.DataType {
	case schema.Bool:
		return kindBool
	case schema.Int, schema.Uint, schema.Float:
		return kindNumber
	case schema.Time:
		return kindTime
	case "date":
		return kindDate
	case "json":
		return kindJSON
	}
	return kindText
}

// refTargets maps a natural-key field to the entity it names.
var refTargets = map[string]catalog.Entity{
	"username":        catalog.EntityUsers,
	"modality_name":   catalog.EntityModalities,
	"stage_name":      catalog.EntityProcessStages,
	"capability_name": catalog.EntityCapabilities,
	"entity_name":     catalog.EntityManufacturingEntities,
	"template_name":   catalog.EntityProcessTemplates,
	"product_code":    catalog.EntityProducts,
	"technology_name": catalog.EntityTechnologies,
	"challenge_name":  catalog.EntityChallenges,
}

// creatable lists the references a user may create while resolving, with
// the column that takes a free-form "category".
var creatable = map[string]string{
	"modality_name":   "modality_category",
	"stage_name":      "stage_category",
	"capability_name": "capability_category",
}
