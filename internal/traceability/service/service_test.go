package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/pipelineintel/internal/catalog/catalogtest"
	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/catalog/repository"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/traceability/domain"
	"github.com/smallbiznis/pipelineintel/internal/traceability/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	modalityMAb = int64(1)
	modalityADC = int64(2)

	templateMAb = int64(10)

	stageUpstream   = int64(100)
	stageCulture    = int64(101)
	stageDownstream = int64(102)
	stageCapture    = int64(103)
	stageFill       = int64(104)
)

func newService(t *testing.T) (*service.Service, *gorm.DB) {
	t.Helper()
	db := catalogtest.NewDB(t)
	svc := service.NewService(service.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   repository.Provide(),
		Config: config.NewStaticImportConfigHolder(config.DefaultImportConfig()),
	})
	return svc, db
}

// seedCatalog builds one template whose stages span three phases, listed
// out of phase order.
func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&[]catalog.Modality{
		{ModalityID: modalityMAb, ModalityName: "Monoclonal Antibody"},
		{ModalityID: modalityADC, ModalityName: "ADC"},
	}).Error)
	require.NoError(t, db.Create(&[]catalog.ProcessStage{
		{StageID: 90, StageName: "Fill & Finish", HierarchyLevel: catalogtest.Ptr(1)},
		{StageID: stageUpstream, StageName: "Upstream", HierarchyLevel: catalogtest.Ptr(1)},
		{StageID: stageDownstream, StageName: "Downstream", HierarchyLevel: catalogtest.Ptr(1)},
		{StageID: stageCulture, StageName: "Cell Culture", ParentStageID: catalogtest.Ptr(stageUpstream), HierarchyLevel: catalogtest.Ptr(2)},
		{StageID: stageCapture, StageName: "Capture", ParentStageID: catalogtest.Ptr(stageDownstream), HierarchyLevel: catalogtest.Ptr(2)},
		{StageID: stageFill, StageName: "Aseptic Fill", ParentStageID: catalogtest.Ptr(int64(90)), HierarchyLevel: catalogtest.Ptr(2)},
	}).Error)
	require.NoError(t, db.Create(&catalog.ProcessTemplate{TemplateID: templateMAb, TemplateName: "mAb Platform", ModalityID: catalogtest.Ptr(modalityMAb)}).Error)
	require.NoError(t, db.Create(&[]catalog.TemplateStage{
		{TemplateID: templateMAb, StageID: stageFill, StageOrder: 1, IsRequired: true},
		{TemplateID: templateMAb, StageID: stageCapture, StageOrder: 2, IsRequired: true},
		{TemplateID: templateMAb, StageID: stageCulture, StageOrder: 3, IsRequired: false},
	}).Error)
}

func TestTraceGroupsStagesByPhase(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)

	trace, err := svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityMAb, TemplateID: templateMAb})
	require.NoError(t, err)
	assert.Equal(t, "Monoclonal Antibody", trace.Modality.Name)
	assert.Equal(t, "mAb Platform", trace.Template.Name)

	require.Len(t, trace.Phases, 3)
	assert.Equal(t, "Upstream", trace.Phases[0].Name)
	assert.Equal(t, "Downstream", trace.Phases[1].Name)
	assert.Equal(t, "Fill & Finish", trace.Phases[2].Name)
	require.Len(t, trace.Phases[0].Stages, 1)
	assert.Equal(t, "Cell Culture", trace.Phases[0].Stages[0].Name)
	assert.False(t, trace.Phases[0].Stages[0].IsRequired)
}

func TestTraceTechnologyInheritance(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)
	require.NoError(t, db.Create(&[]catalog.ManufacturingTechnology{
		{TechnologyID: 1, TechnologyName: "Perfusion", StageID: catalogtest.Ptr(stageCulture)},
		{TechnologyID: 2, TechnologyName: "Fed-batch", StageID: catalogtest.Ptr(stageCulture)},
		{TechnologyID: 3, TechnologyName: "Linker Chemistry", StageID: catalogtest.Ptr(stageCulture)},
		{TechnologyID: 4, TechnologyName: "Intensified Seed", StageID: catalogtest.Ptr(stageCulture), TemplateID: catalogtest.Ptr(templateMAb)},
	}).Error)
	require.NoError(t, db.Create(&[]catalog.TechnologyModality{
		{TechnologyID: 2, ModalityID: modalityMAb},
		{TechnologyID: 3, ModalityID: modalityADC},
		{TechnologyID: 4, ModalityID: modalityADC},
	}).Error)
	require.NoError(t, db.Create(&[]catalog.ManufacturingChallenge{
		{ChallengeID: 50, ChallengeName: "Shear stress", TechnologyID: catalogtest.Ptr(int64(1))},
		{ChallengeID: 51, ChallengeName: "Cell retention"},
	}).Error)
	require.NoError(t, db.Create(&catalog.TechnologyChallenge{TechnologyID: 1, ChallengeID: 51}).Error)

	trace, err := svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityMAb, TemplateID: templateMAb})
	require.NoError(t, err)

	techs := trace.Phases[0].Stages[0].Technologies
	require.Len(t, techs, 3)
	assert.Equal(t, "Fed-batch", techs[0].Name)
	assert.Equal(t, domain.ScopeModality, techs[0].Scope)
	assert.Equal(t, "Intensified Seed", techs[1].Name)
	assert.Equal(t, domain.ScopeTemplate, techs[1].Scope)
	assert.Equal(t, "Perfusion", techs[2].Name)
	assert.Equal(t, domain.ScopeGeneric, techs[2].Scope)
	require.Len(t, techs[2].Challenges, 2)
	assert.Equal(t, "Cell retention", techs[2].Challenges[0].Name)
	assert.Equal(t, "Shear stress", techs[2].Challenges[1].Name)

	// a generic technology disappears once it is scoped to another modality
	require.NoError(t, db.Create(&catalog.TechnologyModality{TechnologyID: 1, ModalityID: modalityADC}).Error)
	trace, err = svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityMAb, TemplateID: templateMAb})
	require.NoError(t, err)
	names := []string{}
	for _, tech := range trace.Phases[0].Stages[0].Technologies {
		names = append(names, tech.Name)
	}
	assert.Equal(t, []string{"Fed-batch", "Intensified Seed"}, names)

	adc, err := svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityADC, TemplateID: templateMAb})
	require.NoError(t, err)
	names = names[:0]
	for _, tech := range adc.Phases[0].Stages[0].Technologies {
		names = append(names, tech.Name)
	}
	assert.Equal(t, []string{"Intensified Seed", "Linker Chemistry", "Perfusion"}, names)
}

func TestTraceFiltersByChallenge(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)
	require.NoError(t, db.Create(&[]catalog.ManufacturingTechnology{
		{TechnologyID: 1, TechnologyName: "Perfusion", StageID: catalogtest.Ptr(stageCulture)},
		{TechnologyID: 2, TechnologyName: "Protein A", StageID: catalogtest.Ptr(stageCapture)},
	}).Error)
	require.NoError(t, db.Create(&catalog.ManufacturingChallenge{ChallengeID: 50, ChallengeName: "Resin lifetime", TechnologyID: catalogtest.Ptr(int64(2))}).Error)

	trace, err := svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityMAb, TemplateID: templateMAb, ChallengeID: 50})
	require.NoError(t, err)
	require.Len(t, trace.Phases, 1)
	assert.Equal(t, "Downstream", trace.Phases[0].Name)
	require.Len(t, trace.Phases[0].Stages, 1)
	assert.Equal(t, "Protein A", trace.Phases[0].Stages[0].Technologies[0].Name)
}

func TestTraceUnknownTemplate(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)

	_, err := svc.Trace(context.Background(), domain.TraceRequest{ModalityID: modalityMAb, TemplateID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEffectiveChallenges(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)
	require.NoError(t, db.Create(&[]catalog.ManufacturingChallenge{
		{ChallengeID: 1, ChallengeName: "C1"},
		{ChallengeID: 2, ChallengeName: "C2"},
		{ChallengeID: 3, ChallengeName: "C3"},
		{ChallengeID: 4, ChallengeName: "C4", TechnologyID: catalogtest.Ptr(int64(7))},
	}).Error)
	require.NoError(t, db.Create(&[]catalog.ModalityChallenge{
		{ModalityID: modalityMAb, ChallengeID: 1},
		{ModalityID: modalityMAb, ChallengeID: 3},
	}).Error)
	require.NoError(t, db.Create(&catalog.ManufacturingTechnology{TechnologyID: 7, TechnologyName: "Perfusion"}).Error)
	require.NoError(t, db.Create(&catalog.Product{ProductID: 20, ProductCode: "P", ModalityID: catalogtest.Ptr(modalityMAb)}).Error)
	require.NoError(t, db.Create(&catalog.ProductTechnology{ProductID: 20, TechnologyID: 7}).Error)
	require.NoError(t, db.Create(&[]catalog.ProductChallenge{
		{ProductID: 20, ChallengeID: 1, RelationshipType: catalog.RelationshipExcluded},
		{ProductID: 20, ChallengeID: 2, RelationshipType: catalog.RelationshipExplicit, Notes: catalogtest.Ptr("seen in tox batch")},
		{ProductID: 20, ChallengeID: 3, RelationshipType: catalog.RelationshipExplicit},
	}).Error)

	got, err := svc.EffectiveChallenges(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, "P", got.ProductCode)

	require.Len(t, got.Challenges, 3)
	assert.Equal(t, "C2", got.Challenges[0].Name)
	assert.Equal(t, domain.SourceExplicit, got.Challenges[0].Source)
	assert.Equal(t, "seen in tox batch", *got.Challenges[0].Notes)
	assert.Equal(t, "C3", got.Challenges[1].Name)
	assert.Equal(t, domain.SourceExplicit, got.Challenges[1].Source)
	assert.Equal(t, "C4", got.Challenges[2].Name)
	assert.Equal(t, domain.SourceTechnology, got.Challenges[2].Source)

	require.Len(t, got.Excluded, 1)
	assert.Equal(t, "C1", got.Excluded[0].Name)

	_, err = svc.EffectiveChallenges(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEffectiveChallengeLaw(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)
	require.NoError(t, db.Create(&[]catalog.ManufacturingChallenge{
		{ChallengeID: 1, ChallengeName: "C1"},
		{ChallengeID: 2, ChallengeName: "C2"},
	}).Error)
	require.NoError(t, db.Create(&catalog.ModalityChallenge{ModalityID: modalityMAb, ChallengeID: 1}).Error)
	require.NoError(t, db.Create(&catalog.Product{ProductID: 20, ProductCode: "P", ModalityID: catalogtest.Ptr(modalityMAb)}).Error)
	require.NoError(t, db.Create(&[]catalog.ProductChallenge{
		{ProductID: 20, ChallengeID: 1, RelationshipType: catalog.RelationshipExcluded},
		{ProductID: 20, ChallengeID: 2, RelationshipType: catalog.RelationshipExplicit},
	}).Error)

	got, err := svc.EffectiveChallenges(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got.Challenges, 1)
	assert.Equal(t, "C2", got.Challenges[0].Name)
	assert.Equal(t, domain.SourceExplicit, got.Challenges[0].Source)
}

func TestFiltersAndTemplates(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)
	require.NoError(t, db.Create(&catalog.ProcessTemplate{TemplateID: 11, TemplateName: "ADC Platform", ModalityID: catalogtest.Ptr(modalityADC)}).Error)

	filters, err := svc.AvailableFilters(context.Background())
	require.NoError(t, err)
	require.Len(t, filters.Modalities, 2)
	assert.Equal(t, "ADC", filters.Modalities[0].Name)
	assert.Equal(t, modalityADC, filters.Modalities[0].ID)
	require.Len(t, filters.Templates, 2)
	assert.Equal(t, "ADC Platform", filters.Templates[0].Name)
	assert.Empty(t, filters.Challenges)

	templates, err := svc.TemplatesByModality(context.Background(), modalityMAb)
	require.NoError(t, err)
	assert.Equal(t, []domain.Option{{ID: templateMAb, Name: "mAb Platform"}}, templates)
}

func TestNodeDetails(t *testing.T) {
	svc, db := newService(t)
	seedCatalog(t, db)

	details, err := svc.NodeDetails(context.Background(), "template", templateMAb)
	require.NoError(t, err)
	assert.Equal(t, "Monoclonal Antibody", details["modality_name"])
	assert.Equal(t, 3, details["stage_count"])

	details, err = svc.NodeDetails(context.Background(), "stage", stageCulture)
	require.NoError(t, err)
	assert.Equal(t, "Upstream", details["parent_stage_name"])

	details, err = svc.NodeDetails(context.Background(), "modality", modalityMAb)
	require.NoError(t, err)
	assert.Equal(t, 1, details["template_count"])

	_, err = svc.NodeDetails(context.Background(), "galaxy", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidNodeType)

	_, err = svc.NodeDetails(context.Background(), "challenge", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
