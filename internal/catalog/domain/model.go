package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User is an operator account. Passwords are stored as Argon2id hashes.
type User struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Username  string    `json:"username" gorm:"column:username;type:varchar(150);not null;uniqueIndex:ux_users_username"`
	Password  string    `json:"password" gorm:"column:password;type:varchar(255);not null"`
	IsAdmin   bool      `json:"is_admin" gorm:"column:is_admin;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (User) TableName() string { return "users" }

type Modality struct {
	ModalityID         int64          `json:"modality_id" gorm:"column:modality_id;primaryKey;autoIncrement:false"`
	ModalityName       string         `json:"modality_name" gorm:"column:modality_name;type:varchar(255);not null;uniqueIndex:ux_modalities_name"`
	ModalityCategory   *string        `json:"modality_category" gorm:"column:modality_category;type:varchar(255)"`
	Label              *string        `json:"label" gorm:"column:label;type:varchar(255)"`
	ShortDescription   *string        `json:"short_description" gorm:"column:short_description;type:text"`
	Description        *string        `json:"description" gorm:"column:description;type:text"`
	StandardChallenges datatypes.JSON `json:"standard_challenges" gorm:"column:standard_challenges"`
	CreatedAt          time.Time      `json:"created_at" gorm:"column:created_at;not null"`
}

func (Modality) TableName() string { return "modalities" }

// ProcessStage is a node of the stage tree. Root stages are value-step phases.
type ProcessStage struct {
	StageID          int64     `json:"stage_id" gorm:"column:stage_id;primaryKey;autoIncrement:false"`
	StageName        string    `json:"stage_name" gorm:"column:stage_name;type:varchar(255);not null;uniqueIndex:ux_process_stages_name"`
	StageCategory    *string   `json:"stage_category" gorm:"column:stage_category;type:varchar(255)"`
	ShortDescription *string   `json:"short_description" gorm:"column:short_description;type:text"`
	Description      *string   `json:"description" gorm:"column:description;type:text"`
	ParentStageID    *int64    `json:"parent_stage_id" gorm:"column:parent_stage_id;index"`
	HierarchyLevel   *int      `json:"hierarchy_level" gorm:"column:hierarchy_level"`
	StageOrder       *int      `json:"stage_order" gorm:"column:stage_order"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ProcessStage) TableName() string { return "process_stages" }

type ManufacturingCapability struct {
	CapabilityID       int64     `json:"capability_id" gorm:"column:capability_id;primaryKey;autoIncrement:false"`
	CapabilityName     string    `json:"capability_name" gorm:"column:capability_name;type:varchar(255);not null;uniqueIndex:ux_capabilities_name"`
	CapabilityCategory *string   `json:"capability_category" gorm:"column:capability_category;type:varchar(255)"`
	ApproachCategory   *string   `json:"approach_category" gorm:"column:approach_category;type:varchar(255)"`
	Description        *string   `json:"description" gorm:"column:description;type:text"`
	ComplexityWeight   *int      `json:"complexity_weight" gorm:"column:complexity_weight"`
	CreatedAt          time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ManufacturingCapability) TableName() string { return "manufacturing_capabilities" }

const (
	EntityTypeInternal = "Internal"
	EntityTypeExternal = "External"
)

// ManufacturingEntity is the shared parent of facilities and partners.
type ManufacturingEntity struct {
	EntityID          int64     `json:"entity_id" gorm:"column:entity_id;primaryKey;autoIncrement:false"`
	EntityName        string    `json:"entity_name" gorm:"column:entity_name;type:varchar(255);not null;uniqueIndex:ux_entities_name"`
	EntityType        string    `json:"entity_type" gorm:"column:entity_type;type:varchar(50);not null"`
	Location          *string   `json:"location" gorm:"column:location;type:varchar(255)"`
	OperationalStatus *string   `json:"operational_status" gorm:"column:operational_status;type:varchar(100)"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ManufacturingEntity) TableName() string { return "manufacturing_entities" }

type InternalFacility struct {
	EntityID               int64          `json:"entity_id" gorm:"column:entity_id;primaryKey;autoIncrement:false"`
	FacilityCode           string         `json:"facility_code" gorm:"column:facility_code;type:varchar(100);not null;uniqueIndex:ux_facilities_code"`
	CostCenter             *string        `json:"cost_center" gorm:"column:cost_center;type:varchar(100)"`
	FacilityType           *string        `json:"facility_type" gorm:"column:facility_type;type:varchar(100)"`
	CompatibleProductTypes datatypes.JSON `json:"compatible_product_types" gorm:"column:compatible_product_types"`
	InternalCapacity       datatypes.JSON `json:"internal_capacity" gorm:"column:internal_capacity"`
}

func (InternalFacility) TableName() string { return "internal_facilities" }

type ExternalPartner struct {
	EntityID           int64   `json:"entity_id" gorm:"column:entity_id;primaryKey;autoIncrement:false"`
	CompanyName        string  `json:"company_name" gorm:"column:company_name;type:varchar(255);not null;uniqueIndex:ux_partners_company"`
	RelationshipType   *string `json:"relationship_type" gorm:"column:relationship_type;type:varchar(100)"`
	ContractTerms      *string `json:"contract_terms" gorm:"column:contract_terms;type:text"`
	ExclusivityLevel   *string `json:"exclusivity_level" gorm:"column:exclusivity_level;type:varchar(100)"`
	CapacityAllocation *string `json:"capacity_allocation" gorm:"column:capacity_allocation;type:text"`
	Specialization     *string `json:"specialization" gorm:"column:specialization;type:text"`
}

func (ExternalPartner) TableName() string { return "external_partners" }

type ProcessTemplate struct {
	TemplateID   int64     `json:"template_id" gorm:"column:template_id;primaryKey;autoIncrement:false"`
	TemplateName string    `json:"template_name" gorm:"column:template_name;type:varchar(255);not null;uniqueIndex:ux_templates_name"`
	ModalityID   *int64    `json:"modality_id" gorm:"column:modality_id;index"`
	Description  *string   `json:"description" gorm:"column:description;type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ProcessTemplate) TableName() string { return "process_templates" }

// TemplateStage orders a stage inside a template.
type TemplateStage struct {
	TemplateID       int64          `json:"template_id" gorm:"column:template_id;primaryKey;autoIncrement:false"`
	StageID          int64          `json:"stage_id" gorm:"column:stage_id;primaryKey;autoIncrement:false"`
	StageOrder       int            `json:"stage_order" gorm:"column:stage_order;not null"`
	IsRequired       bool           `json:"is_required" gorm:"column:is_required;not null"`
	BaseCapabilities datatypes.JSON `json:"base_capabilities" gorm:"column:base_capabilities"`
}

func (TemplateStage) TableName() string { return "template_stages" }

type Product struct {
	ProductID              int64          `json:"product_id" gorm:"column:product_id;primaryKey;autoIncrement:false"`
	ProductCode            string         `json:"product_code" gorm:"column:product_code;type:varchar(100);not null;uniqueIndex:ux_products_code"`
	ProductName            *string        `json:"product_name" gorm:"column:product_name;type:varchar(255)"`
	ProductType            *string        `json:"product_type" gorm:"column:product_type;type:varchar(100)"`
	ShortDescription       *string        `json:"short_description" gorm:"column:short_description;type:text"`
	Description            *string        `json:"description" gorm:"column:description;type:text"`
	BaseTechnology         *string        `json:"base_technology" gorm:"column:base_technology;type:varchar(255)"`
	MechanismOfAction      *string        `json:"mechanism_of_action" gorm:"column:mechanism_of_action;type:text"`
	DosageForm             *string        `json:"dosage_form" gorm:"column:dosage_form;type:varchar(255)"`
	TherapeuticArea        *string        `json:"therapeutic_area" gorm:"column:therapeutic_area;type:varchar(255)"`
	CurrentPhase           *string        `json:"current_phase" gorm:"column:current_phase;type:varchar(100)"`
	ProjectStatus          *string        `json:"project_status" gorm:"column:project_status;type:varchar(100)"`
	LeadIndication         *string        `json:"lead_indication" gorm:"column:lead_indication;type:varchar(255)"`
	ExpectedLaunchYear     *int           `json:"expected_launch_year" gorm:"column:expected_launch_year"`
	LifecycleIndications   datatypes.JSON `json:"lifecycle_indications" gorm:"column:lifecycle_indications"`
	RegulatoryDesignations datatypes.JSON `json:"regulatory_designations" gorm:"column:regulatory_designations"`
	ManufacturingStrategy  *string        `json:"manufacturing_strategy" gorm:"column:manufacturing_strategy;type:text"`
	ManufacturingSites     datatypes.JSON `json:"manufacturing_sites" gorm:"column:manufacturing_sites"`
	VolumeForecast         datatypes.JSON `json:"volume_forecast" gorm:"column:volume_forecast"`
	DSSuppliers            datatypes.JSON `json:"ds_suppliers" gorm:"column:ds_suppliers"`
	DPSuppliers            datatypes.JSON `json:"dp_suppliers" gorm:"column:dp_suppliers"`
	DevicePartners         datatypes.JSON `json:"device_partners" gorm:"column:device_partners"`
	SupplyRisks            datatypes.JSON `json:"supply_risks" gorm:"column:supply_risks"`
	ModalityID             *int64         `json:"modality_id" gorm:"column:modality_id;index"`
	ProcessTemplateID      *int64         `json:"process_template_id" gorm:"column:process_template_id;index"`
	IsNME                  bool           `json:"is_nme" gorm:"column:is_nme;not null;default:false"`
	IsLineExtension        bool           `json:"is_line_extension" gorm:"column:is_line_extension;not null;default:false"`
	ParentProductID        *int64         `json:"parent_product_id" gorm:"column:parent_product_id;uniqueIndex:ux_products_launch_sequence,priority:1"`
	LaunchSequence         *int           `json:"launch_sequence" gorm:"column:launch_sequence;uniqueIndex:ux_products_launch_sequence,priority:2"`
	CreatedAt              time.Time      `json:"created_at" gorm:"column:created_at;not null"`
	UpdatedAt              time.Time      `json:"updated_at" gorm:"column:updated_at;not null"`
}

func (Product) TableName() string { return "products" }

type Indication struct {
	IndicationID       int64   `json:"indication_id" gorm:"column:indication_id;primaryKey;autoIncrement:false"`
	ProductID          int64   `json:"product_id" gorm:"column:product_id;not null;index"`
	IndicationName     string  `json:"indication_name" gorm:"column:indication_name;type:varchar(255);not null"`
	TherapeuticArea    *string `json:"therapeutic_area" gorm:"column:therapeutic_area;type:varchar(255)"`
	DevelopmentPhase   *string `json:"development_phase" gorm:"column:development_phase;type:varchar(100)"`
	ExpectedLaunchYear *int    `json:"expected_launch_year" gorm:"column:expected_launch_year"`
}

func (Indication) TableName() string { return "indications" }

type ProductSupplyChain struct {
	ID                 int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	ProductID          int64   `json:"product_id" gorm:"column:product_id;not null;index"`
	ManufacturingStage string  `json:"manufacturing_stage" gorm:"column:manufacturing_stage;type:varchar(255);not null"`
	SupplyModel        *string `json:"supply_model" gorm:"column:supply_model;type:varchar(100)"`
	EntityID           *int64  `json:"entity_id" gorm:"column:entity_id;index"`
	InternalSiteName   *string `json:"internal_site_name" gorm:"column:internal_site_name;type:varchar(255)"`
}

func (ProductSupplyChain) TableName() string { return "product_supply_chain" }

type ProductTimeline struct {
	TimelineID    int64   `json:"timeline_id" gorm:"column:timeline_id;primaryKey;autoIncrement:false"`
	ProductID     int64   `json:"product_id" gorm:"column:product_id;not null;index"`
	MilestoneType *string `json:"milestone_type" gorm:"column:milestone_type;type:varchar(100)"`
	MilestoneName string  `json:"milestone_name" gorm:"column:milestone_name;type:varchar(255);not null"`
	MilestoneDate *Date   `json:"milestone_date" gorm:"column:milestone_date"`
	Status        *string `json:"status" gorm:"column:status;type:varchar(100)"`
	Notes         *string `json:"notes" gorm:"column:notes;type:text"`
}

func (ProductTimeline) TableName() string { return "product_timelines" }

type ProductRegulatoryFiling struct {
	FilingID       int64   `json:"filing_id" gorm:"column:filing_id;primaryKey;autoIncrement:false"`
	ProductID      int64   `json:"product_id" gorm:"column:product_id;not null;index"`
	Indication     *string `json:"indication" gorm:"column:indication;type:varchar(255)"`
	Agency         *string `json:"agency" gorm:"column:agency;type:varchar(100)"`
	SubmissionType *string `json:"submission_type" gorm:"column:submission_type;type:varchar(100)"`
	SubmissionDate *Date   `json:"submission_date" gorm:"column:submission_date"`
	ApprovalDate   *Date   `json:"approval_date" gorm:"column:approval_date"`
	Status         *string `json:"status" gorm:"column:status;type:varchar(100)"`
}

func (ProductRegulatoryFiling) TableName() string { return "product_regulatory_filings" }

const (
	SupplyTypeDS     = "DS"
	SupplyTypeDP     = "DP"
	SupplyTypeDevice = "Device"
)

type ProductManufacturingSupplier struct {
	SupplierID   int64   `json:"supplier_id" gorm:"column:supplier_id;primaryKey;autoIncrement:false"`
	ProductID    int64   `json:"product_id" gorm:"column:product_id;not null;index"`
	SupplyType   string  `json:"supply_type" gorm:"column:supply_type;type:varchar(50);not null"`
	SupplierName string  `json:"supplier_name" gorm:"column:supplier_name;type:varchar(255);not null"`
	Role         *string `json:"role" gorm:"column:role;type:varchar(255)"`
	Location     *string `json:"location" gorm:"column:location;type:varchar(255)"`
	Status       *string `json:"status" gorm:"column:status;type:varchar(100)"`
	Notes        *string `json:"notes" gorm:"column:notes;type:text"`
}

func (ProductManufacturingSupplier) TableName() string { return "product_manufacturing_suppliers" }

type ManufacturingTechnology struct {
	TechnologyID        int64     `json:"technology_id" gorm:"column:technology_id;primaryKey;autoIncrement:false"`
	TechnologyName      string    `json:"technology_name" gorm:"column:technology_name;type:varchar(255);not null;uniqueIndex:ux_technologies_name"`
	ShortDescription    *string   `json:"short_description" gorm:"column:short_description;type:text"`
	Description         *string   `json:"description" gorm:"column:description;type:text"`
	StageID             *int64    `json:"stage_id" gorm:"column:stage_id;index"`
	TemplateID          *int64    `json:"template_id" gorm:"column:template_id;index"`
	InnovationPotential *string   `json:"innovation_potential" gorm:"column:innovation_potential;type:varchar(100)"`
	ComplexityRating    *int      `json:"complexity_rating" gorm:"column:complexity_rating"`
	CreatedAt           time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (ManufacturingTechnology) TableName() string { return "manufacturing_technologies" }

// TechnologyModality scopes a technology to a modality. A technology with no
// rows here is generic.
type TechnologyModality struct {
	TechnologyID int64     `json:"technology_id" gorm:"column:technology_id;primaryKey;autoIncrement:false"`
	ModalityID   int64     `json:"modality_id" gorm:"column:modality_id;primaryKey;autoIncrement:false"`
	Notes        *string   `json:"notes" gorm:"column:notes;type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

func (TechnologyModality) TableName() string { return "technology_modalities" }

type ProductTechnology struct {
	ProductID    int64 `json:"product_id" gorm:"column:product_id;primaryKey;autoIncrement:false"`
	TechnologyID int64 `json:"technology_id" gorm:"column:technology_id;primaryKey;autoIncrement:false"`
}

func (ProductTechnology) TableName() string { return "product_to_technology" }

type ManufacturingChallenge struct {
	ChallengeID         int64          `json:"challenge_id" gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	ChallengeName       string         `json:"challenge_name" gorm:"column:challenge_name;type:varchar(255);not null;uniqueIndex:ux_challenges_name"`
	ChallengeCategory   *string        `json:"challenge_category" gorm:"column:challenge_category;type:varchar(255)"`
	SeverityLevel       *string        `json:"severity_level" gorm:"column:severity_level;type:varchar(50)"`
	ShortDescription    *string        `json:"short_description" gorm:"column:short_description;type:text"`
	Explanation         *string        `json:"explanation" gorm:"column:explanation;type:text"`
	RelatedCapabilities datatypes.JSON `json:"related_capabilities" gorm:"column:related_capabilities"`
	TechnologyID        *int64         `json:"technology_id" gorm:"column:technology_id;index"`
	CreatedAt           time.Time      `json:"created_at" gorm:"column:created_at;not null"`
}

func (ManufacturingChallenge) TableName() string { return "manufacturing_challenges" }

type TechnologyChallenge struct {
	TechnologyID int64 `json:"technology_id" gorm:"column:technology_id;primaryKey;autoIncrement:false"`
	ChallengeID  int64 `json:"challenge_id" gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
}

func (TechnologyChallenge) TableName() string { return "technology_challenges" }

type ChallengeStage struct {
	ChallengeID int64 `json:"challenge_id" gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	StageID     int64 `json:"stage_id" gorm:"column:stage_id;primaryKey;autoIncrement:false"`
}

func (ChallengeStage) TableName() string { return "challenge_stages" }

// ModalityChallenge marks a challenge as typical for a modality and carries
// modality-specific detail.
type ModalityChallenge struct {
	ModalityID          int64   `json:"modality_id" gorm:"column:modality_id;primaryKey;autoIncrement:false"`
	ChallengeID         int64   `json:"challenge_id" gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	SpecificDescription *string `json:"specific_description" gorm:"column:specific_description;type:text"`
	ImpactScore         *int    `json:"impact_score" gorm:"column:impact_score"`
	MaturityScore       *int    `json:"maturity_score" gorm:"column:maturity_score"`
	Notes               *string `json:"notes" gorm:"column:notes;type:text"`
}

func (ModalityChallenge) TableName() string { return "modality_challenges" }

const (
	RelationshipExplicit = "explicit"
	RelationshipExcluded = "excluded"
)

type ProductChallenge struct {
	ProductID        int64   `json:"product_id" gorm:"column:product_id;primaryKey;autoIncrement:false"`
	ChallengeID      int64   `json:"challenge_id" gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	RelationshipType string  `json:"relationship_type" gorm:"column:relationship_type;type:varchar(20);not null;default:explicit"`
	Notes            *string `json:"notes" gorm:"column:notes;type:text"`
}

func (ProductChallenge) TableName() string { return "product_to_challenge" }

// Models lists every table in dependency order.
func Models() []any {
	return []any{
		&User{},
		&Modality{},
		&ProcessStage{},
		&ManufacturingCapability{},
		&ManufacturingEntity{},
		&InternalFacility{},
		&ExternalPartner{},
		&ProcessTemplate{},
		&TemplateStage{},
		&Product{},
		&Indication{},
		&ProductSupplyChain{},
		&ProductTimeline{},
		&ProductRegulatoryFiling{},
		&ProductManufacturingSupplier{},
		&ManufacturingTechnology{},
		&TechnologyModality{},
		&ProductTechnology{},
		&ManufacturingChallenge{},
		&TechnologyChallenge{},
		&ChallengeStage{},
		&ModalityChallenge{},
		&ProductChallenge{},
	}
}
