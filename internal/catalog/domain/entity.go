package domain

import "fmt"

// Entity names a catalog table. The value doubles as the import entity type
// and the backup section key.
type Entity string

const (
	EntityUsers                  Entity = "users"
	EntityModalities             Entity = "modalities"
	EntityProcessStages          Entity = "process_stages"
	EntityCapabilities           Entity = "manufacturing_capabilities"
	EntityManufacturingEntities  Entity = "manufacturing_entities"
	EntityInternalFacilities     Entity = "internal_facilities"
	EntityExternalPartners       Entity = "external_partners"
	EntityProcessTemplates       Entity = "process_templates"
	EntityTemplateStages         Entity = "template_stages"
	EntityProducts               Entity = "products"
	EntityIndications            Entity = "indications"
	EntitySupplyChain            Entity = "product_supply_chain"
	EntityTimelines              Entity = "product_timelines"
	EntityRegulatoryFilings      Entity = "product_regulatory_filings"
	EntityManufacturingSuppliers Entity = "product_manufacturing_suppliers"
	EntityTechnologies           Entity = "manufacturing_technologies"
	EntityTechnologyModalities   Entity = "technology_modalities"
	EntityProductTechnologies    Entity = "product_to_technology"
	EntityChallenges             Entity = "manufacturing_challenges"
	EntityTechnologyChallenges   Entity = "technology_challenges"
	EntityChallengeStages        Entity = "challenge_stages"
	EntityModalityChallenges     Entity = "modality_challenges"
	EntityProductChallenges      Entity = "product_to_challenge"
)

// Meta describes how an entity is stored.
type Meta struct {
	Table string
	// PK is empty for junction tables with a composite key.
	PK string
	// Name is the unique natural-key column, empty when the entity has none.
	Name     string
	NewModel func() any
	NewSlice func() any
}

var metas = map[Entity]Meta{
	EntityUsers: {
		Table: "users", PK: "id", Name: "username",
		NewModel: func() any { return &User{} }, NewSlice: func() any { return &[]User{} },
	},
	EntityModalities: {
		Table: "modalities", PK: "modality_id", Name: "modality_name",
		NewModel: func() any { return &Modality{} }, NewSlice: func() any { return &[]Modality{} },
	},
	EntityProcessStages: {
		Table: "process_stages", PK: "stage_id", Name: "stage_name",
		NewModel: func() any { return &ProcessStage{} }, NewSlice: func() any { return &[]ProcessStage{} },
	},
	EntityCapabilities: {
		Table: "manufacturing_capabilities", PK: "capability_id", Name: "capability_name",
		NewModel: func() any { return &ManufacturingCapability{} }, NewSlice: func() any { return &[]ManufacturingCapability{} },
	},
	EntityManufacturingEntities: {
		Table: "manufacturing_entities", PK: "entity_id", Name: "entity_name",
		NewModel: func() any { return &ManufacturingEntity{} }, NewSlice: func() any { return &[]ManufacturingEntity{} },
	},
	EntityInternalFacilities: {
		Table: "internal_facilities", PK: "entity_id", Name: "facility_code",
		NewModel: func() any { return &InternalFacility{} }, NewSlice: func() any { return &[]InternalFacility{} },
	},
	EntityExternalPartners: {
		Table: "external_partners", PK: "entity_id", Name: "company_name",
		NewModel: func() any { return &ExternalPartner{} }, NewSlice: func() any { return &[]ExternalPartner{} },
	},
	EntityProcessTemplates: {
		Table: "process_templates", PK: "template_id", Name: "template_name",
		NewModel: func() any { return &ProcessTemplate{} }, NewSlice: func() any { return &[]ProcessTemplate{} },
	},
	EntityTemplateStages: {
		Table:    "template_stages",
		NewModel: func() any { return &TemplateStage{} }, NewSlice: func() any { return &[]TemplateStage{} },
	},
	EntityProducts: {
		Table: "products", PK: "product_id", Name: "product_code",
		NewModel: func() any { return &Product{} }, NewSlice: func() any { return &[]Product{} },
	},
	EntityIndications: {
		Table: "indications", PK: "indication_id",
		NewModel: func() any { return &Indication{} }, NewSlice: func() any { return &[]Indication{} },
	},
	EntitySupplyChain: {
		Table: "product_supply_chain", PK: "id",
		NewModel: func() any { return &ProductSupplyChain{} }, NewSlice: func() any { return &[]ProductSupplyChain{} },
	},
	EntityTimelines: {
		Table: "product_timelines", PK: "timeline_id",
		NewModel: func() any { return &ProductTimeline{} }, NewSlice: func() any { return &[]ProductTimeline{} },
	},
	EntityRegulatoryFilings: {
		Table: "product_regulatory_filings", PK: "filing_id",
		NewModel: func() any { return &ProductRegulatoryFiling{} }, NewSlice: func() any { return &[]ProductRegulatoryFiling{} },
	},
	EntityManufacturingSuppliers: {
		Table: "product_manufacturing_suppliers", PK: "supplier_id",
		NewModel: func() any { return &ProductManufacturingSupplier{} }, NewSlice: func() any { return &[]ProductManufacturingSupplier{} },
	},
	EntityTechnologies: {
		Table: "manufacturing_technologies", PK: "technology_id", Name: "technology_name",
		NewModel: func() any { return &ManufacturingTechnology{} }, NewSlice: func() any { return &[]ManufacturingTechnology{} },
	},
	EntityTechnologyModalities: {
		Table:    "technology_modalities",
		NewModel: func() any { return &TechnologyModality{} }, NewSlice: func() any { return &[]TechnologyModality{} },
	},
	EntityProductTechnologies: {
		Table:    "product_to_technology",
		NewModel: func() any { return &ProductTechnology{} }, NewSlice: func() any { return &[]ProductTechnology{} },
	},
	EntityChallenges: {
		Table: "manufacturing_challenges", PK: "challenge_id", Name: "challenge_name",
		NewModel: func() any { return &ManufacturingChallenge{} }, NewSlice: func() any { return &[]ManufacturingChallenge{} },
	},
	EntityTechnologyChallenges: {
		Table:    "technology_challenges",
		NewModel: func() any { return &TechnologyChallenge{} }, NewSlice: func() any { return &[]TechnologyChallenge{} },
	},
	EntityChallengeStages: {
		Table:    "challenge_stages",
		NewModel: func() any { return &ChallengeStage{} }, NewSlice: func() any { return &[]ChallengeStage{} },
	},
	EntityModalityChallenges: {
		Table:    "modality_challenges",
		NewModel: func() any { return &ModalityChallenge{} }, NewSlice: func() any { return &[]ModalityChallenge{} },
	},
	EntityProductChallenges: {
		Table:    "product_to_challenge",
		NewModel: func() any { return &ProductChallenge{} }, NewSlice: func() any { return &[]ProductChallenge{} },
	},
}

// TableOrder lists entities parents first. Restores insert in this order and
// wipes in reverse.
var TableOrder = []Entity{
	EntityUsers,
	EntityModalities,
	EntityProcessStages,
	EntityCapabilities,
	EntityManufacturingEntities,
	EntityInternalFacilities,
	EntityExternalPartners,
	EntityProcessTemplates,
	EntityTemplateStages,
	EntityProducts,
	EntityIndications,
	EntitySupplyChain,
	EntityTimelines,
	EntityRegulatoryFilings,
	EntityManufacturingSuppliers,
	EntityTechnologies,
	EntityTechnologyModalities,
	EntityProductTechnologies,
	EntityChallenges,
	EntityTechnologyChallenges,
	EntityChallengeStages,
	EntityModalityChallenges,
	EntityProductChallenges,
}

func MetaOf(entity Entity) (Meta, error) {
	meta, ok := metas[entity]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrInvalidEntity, entity)
	}
	return meta, nil
}

// Named reports whether the entity has a unique name column.
func (e Entity) Named() bool {
	return metas[e].Name != ""
}
