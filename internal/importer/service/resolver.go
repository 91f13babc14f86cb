package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	catalogsvc "github.com/smallbiznis/pipelineintel/internal/catalog/service"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/gorm"
)

type resolveMode int

const (
	modeAnalyze resolveMode = iota
	modeFinalize
)

// errInvalidValue marks per-record input problems. They fail the record,
// never the batch.
var errInvalidValue = errors.New("invalid_value")

type linkKind string

const (
	linkProductTechnologies  linkKind = "product_technologies"
	linkExplicitChallenges   linkKind = "explicit_challenges"
	linkExcludedChallenges   linkKind = "excluded_challenges"
	linkChallengeProducts    linkKind = "challenge_products"
	linkChallengeModalities  linkKind = "challenge_modalities"
	linkChallengeStages      linkKind = "challenge_stages"
	linkTechnologyModalities linkKind = "technology_modalities"
	linkTechnologyChallenges linkKind = "technology_challenges"
)

// label is the key a link change is reported under.
func (k linkKind) label() string {
	switch k {
	case linkProductTechnologies:
		return "technologies"
	case linkChallengeProducts:
		return "products"
	case linkChallengeModalities, linkTechnologyModalities:
		return "modalities"
	case linkChallengeStages:
		return "stages"
	case linkTechnologyChallenges:
		return "challenges"
	}
	return string(k)
}

// linkIntent is a junction change applied after the owning row is written.
type linkIntent struct {
	kind   linkKind
	target catalog.Entity
	names  []string
	notes  map[string]*string
	// replace makes the names the complete set instead of additions.
	replace bool
}

type stageIntent struct {
	name     string
	order    int
	required bool
	caps     any
}

type violation struct {
	err error
	msg string
}

// resolved is one record after name resolution. Link intents, warnings
// and computed values travel beside the column map, never inside it.
type resolved struct {
	columns map[string]any
	// parent holds manufacturing entity fields of facilities and partners.
	parent map[string]any
	// deferred maps a column to a name that is created earlier in the batch.
	deferred   map[string]string
	links      []linkIntent
	stages     []stageIntent
	stagesSet  bool
	children   map[string][]map[string]any
	computed   map[string]any
	warnings   []string
	violations []violation
	missing    []domain.MissingReference

	existing   any
	existingID int64
}

func newResolved() *resolved {
	return &resolved{
		columns:  map[string]any{},
		parent:   map[string]any{},
		deferred: map[string]string{},
		children: map[string][]map[string]any{},
		computed: map[string]any{},
	}
}

func (r *resolved) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *resolved) violate(err error, format string, args ...any) {
	r.violations = append(r.violations, violation{err: err, msg: fmt.Sprintf(format, args...)})
}

// resolver rewrites natural keys into surrogate keys.
type resolver struct {
	repo    catalog.Repository
	mode    resolveMode
	formats []string
	// pending holds names created earlier in the batch being analyzed.
	pending map[catalog.Entity]map[string]bool
}

func newResolver(repo catalog.Repository, mode resolveMode, formats []string) *resolver {
	return &resolver{
		repo:    repo,
		mode:    mode,
		formats: formats,
		pending: map[catalog.Entity]map[string]bool{},
	}
}

func (r *resolver) markPending(entity catalog.Entity, name string) {
	if r.pending[entity] == nil {
		r.pending[entity] = map[string]bool{}
	}
	r.pending[entity][name] = true
}

// lookup returns the id of a named row. pending is true when the row does
// not exist yet but an earlier record of the batch creates it.
func (r *resolver) lookup(ctx context.Context, db *gorm.DB, entity catalog.Entity, name string) (id int64, found, pending bool, err error) {
	id, found, err = r.repo.FindIDByName(ctx, db, entity, name)
	if err != nil || found {
		return id, found, false, err
	}
	if r.mode == modeAnalyze && r.pending[entity][name] {
		return 0, false, true, nil
	}
	return 0, false, false, nil
}

// bind resolves the scalar reference in input[field] into column.
func (r *resolver) bind(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any, field, key, column string) error {
	raw, present := input[field]
	if !present {
		return nil
	}
	name := strings.TrimSpace(textOf(raw))
	if name == "" {
		out.columns[column] = nil
		return nil
	}
	id, found, pending, err := r.lookup(ctx, db, refTargets[key], name)
	if err != nil {
		return err
	}
	switch {
	case found:
		out.columns[column] = id
	case pending:
		delete(out.columns, column)
		out.deferred[column] = name
	default:
		delete(out.columns, column)
		out.missing = append(out.missing, domain.MissingReference{Field: field, Key: key, Value: name})
	}
	return nil
}

// checkNames records missing names of a list reference. Hard references
// need resolution; soft ones are ignored with a warning.
func (r *resolver) checkNames(ctx context.Context, db *gorm.DB, out *resolved, field, key string, names []string, hard bool) error {
	for _, name := range names {
		_, found, pending, err := r.lookup(ctx, db, refTargets[key], name)
		if err != nil {
			return err
		}
		if found || pending {
			continue
		}
		if hard {
			out.missing = append(out.missing, domain.MissingReference{Field: field, Key: key, Value: name})
		} else {
			out.warn("%s %q was not found and will be ignored", key, name)
		}
	}
	return nil
}

// namesOf reads a list of names. Elements may be strings or objects
// carrying key; notes are collected from objects.
func namesOf(raw any, key string) ([]string, map[string]*string, error) {
	notes := map[string]*string{}
	var items []any
	switch t := raw.(type) {
	case nil:
		return nil, notes, nil
	case []any:
		items = t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, notes, nil
		}
		items = []any{t}
	default:
		return nil, nil, fmt.Errorf("%w: expected a list of %s values", errInvalidValue, key)
	}

	seen := map[string]bool{}
	var names []string
	for _, item := range items {
		var name string
		switch v := item.(type) {
		case string:
			name = strings.TrimSpace(v)
		case map[string]any:
			name = strings.TrimSpace(textOf(v[key]))
			if note, ok := v["notes"]; ok && note != nil {
				text := textOf(note)
				notes[name] = &text
			}
		default:
			return nil, nil, fmt.Errorf("%w: expected %s names, got %v", errInvalidValue, key, item)
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, notes, nil
}

// resolve turns one input record into a sanitised column map and side
// channels. It never writes.
func (r *resolver) resolve(ctx context.Context, db *gorm.DB, spec *entitySpec, input map[string]any) (*resolved, error) {
	out := newResolved()
	cols, err := columnsOf(spec.target)
	if err != nil {
		return nil, err
	}

	for field, value := range input {
		kind, ok := cols.writable[field]
		if !ok {
			continue
		}
		v, err := coerce(kind, value, r.formats)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errInvalidValue, field, err)
		}
		out.columns[field] = v
	}

	if spec.target.Named() {
		if err := r.loadByName(ctx, db, spec, input, out); err != nil {
			return nil, err
		}
	}

	switch spec.kind {
	case domain.EntityProcessStages:
		err = r.resolveStage(ctx, db, out, input)
	case domain.EntityFacilities, domain.EntityPartners:
		r.resolveManufacturingSite(out, input)
	case domain.EntityTemplates:
		err = r.resolveTemplate(ctx, db, out, input)
	case domain.EntityProducts:
		err = r.resolveProduct(ctx, db, spec, out, input)
	case domain.EntityIndications:
		err = r.resolveOwned(ctx, db, spec, out, input, []string{"indication_name"}, func() error {
			return r.bind(ctx, db, out, input, "product_code", "product_code", "product_id")
		})
	case domain.EntitySupplyChain:
		err = r.resolveOwned(ctx, db, spec, out, input, []string{"manufacturing_stage"}, func() error {
			if err := r.bind(ctx, db, out, input, "product_code", "product_code", "product_id"); err != nil {
				return err
			}
			return r.bind(ctx, db, out, input, "entity_name", "entity_name", "entity_id")
		})
	case domain.EntityModalityChallenges:
		err = r.resolveOwned(ctx, db, spec, out, input, nil, func() error {
			if err := r.bind(ctx, db, out, input, "modality_name", "modality_name", "modality_id"); err != nil {
				return err
			}
			return r.bind(ctx, db, out, input, "challenge_name", "challenge_name", "challenge_id")
		})
	case domain.EntityTimelines, domain.EntityFilings, domain.EntitySuppliers:
		err = r.resolveOwned(ctx, db, spec, out, input, spec.keys[1:], func() error {
			return r.bind(ctx, db, out, input, "product_code", "product_code", "product_id")
		})
	case domain.EntityTechnologies:
		err = r.resolveTechnology(ctx, db, out, input)
	case domain.EntityChallenges:
		err = r.resolveChallenge(ctx, db, out, input)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resolver) loadByName(ctx context.Context, db *gorm.DB, spec *entitySpec, input map[string]any, out *resolved) error {
	meta, err := catalog.MetaOf(spec.target)
	if err != nil {
		return err
	}
	model := meta.NewModel()
	found, err := r.repo.FindByName(ctx, db, spec.target, spec.name(input), model)
	if err != nil || !found {
		return err
	}
	row, err := catalog.ToMap(model)
	if err != nil {
		return err
	}
	out.existing = model
	out.existingID, err = int64Of(row[meta.PK])
	return err
}

// resolveOwned binds the references of a record keyed by its owners, then
// matches it against existing rows on the resolved owner ids plus match.
func (r *resolver) resolveOwned(ctx context.Context, db *gorm.DB, spec *entitySpec, out *resolved, input map[string]any, match []string, bindRefs func() error) error {
	if err := bindRefs(); err != nil {
		return err
	}

	conds := map[string]any{}
	switch spec.kind {
	case domain.EntityIndications, domain.EntitySupplyChain,
		domain.EntityTimelines, domain.EntityFilings, domain.EntitySuppliers:
		id, ok := out.columns["product_id"]
		if !ok || id == nil {
			return nil
		}
		conds["product_id"] = id
	case domain.EntityModalityChallenges:
		modalityID, ok1 := out.columns["modality_id"]
		challengeID, ok2 := out.columns["challenge_id"]
		if !ok1 || !ok2 || modalityID == nil || challengeID == nil {
			return nil
		}
		conds["modality_id"] = modalityID
		conds["challenge_id"] = challengeID
	}
	for _, field := range match {
		conds[field] = strings.TrimSpace(textOf(input[field]))
	}

	meta, err := catalog.MetaOf(spec.target)
	if err != nil {
		return err
	}
	model := meta.NewModel()
	found, err := r.repo.FindWhere(ctx, db, spec.target, conds, model)
	if err != nil || !found {
		return err
	}
	out.existing = model
	if meta.PK != "" {
		row, err := catalog.ToMap(model)
		if err != nil {
			return err
		}
		out.existingID, err = int64Of(row[meta.PK])
		return err
	}
	return nil
}

func (r *resolver) resolveStage(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any) error {
	delete(out.columns, "hierarchy_level")
	if err := r.bind(ctx, db, out, input, "parent_stage_name", "stage_name", "parent_stage_id"); err != nil {
		return err
	}

	parent, ok := out.columns["parent_stage_id"]
	if !ok {
		if out.existing == nil && len(out.deferred) == 0 {
			out.columns["hierarchy_level"] = 1
		}
		return nil
	}
	var parentID *int64
	if parent != nil {
		id, err := int64Of(parent)
		if err != nil {
			return err
		}
		parentID = &id
	}

	if out.existing != nil && parentID != nil {
		if err := catalogsvc.CheckStageParent(ctx, r.repo, db, out.existingID, parentID); err != nil {
			if errors.Is(err, catalog.ErrHierarchyCycle) {
				out.violate(catalog.ErrHierarchyCycle, "parent %q would create a cycle", textOf(input["parent_stage_name"]))
				return nil
			}
			return err
		}
	}
	level, err := catalogsvc.StageLevel(ctx, r.repo, db, parentID)
	if err != nil {
		return err
	}
	out.columns["hierarchy_level"] = level
	out.computed["hierarchy_level"] = level
	return nil
}

func (r *resolver) resolveManufacturingSite(out *resolved, input map[string]any) {
	for _, field := range []string{"location", "operational_status"} {
		if v, ok := input[field]; ok {
			out.parent[field] = v
		}
	}
}

func (r *resolver) resolveTemplate(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any) error {
	if err := r.bind(ctx, db, out, input, "modality_name", "modality_name", "modality_id"); err != nil {
		return err
	}

	if out.existing != nil {
		if modality, ok := out.columns["modality_id"]; ok && modality != nil {
			id, err := int64Of(modality)
			if err != nil {
				return err
			}
			if err := catalogsvc.CheckTemplateModality(ctx, r.repo, db, out.existingID, &id); err != nil {
				if !errors.Is(err, catalog.ErrTemplateModalityMismatch) {
					return err
				}
				out.violate(catalog.ErrTemplateModalityMismatch, "%v", err)
			}
		}
	}

	raw, ok := input["stages"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok && raw != nil {
		return fmt.Errorf("%w: stages must be a list of objects", errInvalidValue)
	}
	out.stagesSet = true
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: stages[%d] must be an object", errInvalidValue, i)
		}
		name := strings.TrimSpace(textOf(obj["stage_name"]))
		if name == "" {
			return fmt.Errorf("%w: stages[%d] is missing stage_name", errInvalidValue, i)
		}
		order := i + 1
		if v, ok := obj["stage_order"]; ok && v != nil {
			n, err := int64Of(v)
			if err != nil {
				return fmt.Errorf("%w: stages[%d].stage_order: %v", errInvalidValue, i, err)
			}
			order = int(n)
		}
		required := true
		if v, ok := obj["is_required"]; ok && v != nil {
			required = boolText(v) == "true"
		}
		out.stages = append(out.stages, stageIntent{name: name, order: order, required: required, caps: obj["base_capabilities"]})
	}

	names := make([]string, 0, len(out.stages))
	seen := map[string]bool{}
	for _, s := range out.stages {
		if seen[s.name] {
			return fmt.Errorf("%w: stage %q is listed twice", errInvalidValue, s.name)
		}
		seen[s.name] = true
		names = append(names, s.name)
	}
	return r.checkNames(ctx, db, out, "stages", "stage_name", names, true)
}

func (r *resolver) resolveProduct(ctx context.Context, db *gorm.DB, spec *entitySpec, out *resolved, input map[string]any) error {
	if err := r.bind(ctx, db, out, input, "modality_name", "modality_name", "modality_id"); err != nil {
		return err
	}
	if err := r.bind(ctx, db, out, input, "process_template_name", "template_name", "process_template_id"); err != nil {
		return err
	}
	if err := r.bind(ctx, db, out, input, "parent_product_code", "product_code", "parent_product_id"); err != nil {
		return err
	}

	candidate := &catalog.Product{}
	if existing, ok := out.existing.(*catalog.Product); ok {
		copied := *existing
		candidate = &copied
	}
	if err := catalog.Decode(out.columns, candidate); err != nil {
		return fmt.Errorf("%w: %v", errInvalidValue, err)
	}

	if err := r.checkProductTemplate(ctx, db, out, candidate); err != nil {
		return err
	}

	if parentCode := strings.TrimSpace(textOf(input["parent_product_code"])); parentCode != "" && parentCode == spec.name(input) {
		out.violate(catalog.ErrLineExtension, "a product cannot be its own parent")
	}
	if err := r.checkLineExtension(ctx, db, out, input, candidate); err != nil {
		return err
	}

	if err := r.productLinks(ctx, db, out, input); err != nil {
		return err
	}

	for _, key := range productChildKeys {
		raw, ok := input[key]
		if !ok {
			continue
		}
		rows, err := objectsOf(raw, key)
		if err != nil {
			return err
		}
		out.children[key] = rows
	}
	return nil
}

// checkProductTemplate drops a process template that belongs to another
// modality than the product's.
func (r *resolver) checkProductTemplate(ctx context.Context, db *gorm.DB, out *resolved, candidate *catalog.Product) error {
	if _, deferred := out.deferred["modality_id"]; deferred {
		return nil
	}
	if candidate.ProcessTemplateID == nil {
		return nil
	}
	if _, set := out.columns["process_template_id"]; !set {
		if _, changed := out.columns["modality_id"]; !changed {
			return nil
		}
	}

	var template catalog.ProcessTemplate
	found, err := r.repo.FindByID(ctx, db, catalog.EntityProcessTemplates, *candidate.ProcessTemplateID, &template)
	if err != nil || !found {
		return err
	}
	if catalogsvc.TemplateMatchesModality(&template, candidate.ModalityID) {
		return nil
	}
	out.warn("process template %q belongs to another modality and was dropped", template.TemplateName)
	if _, set := out.columns["process_template_id"]; set {
		delete(out.columns, "process_template_id")
	} else {
		out.columns["process_template_id"] = nil
	}
	candidate.ProcessTemplateID = nil
	return nil
}

func (r *resolver) checkLineExtension(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any, candidate *catalog.Product) error {
	_, parentDeferred := out.deferred["parent_product_id"]
	parentMissing := false
	for _, m := range out.missing {
		if m.Field == "parent_product_code" {
			parentMissing = true
		}
	}

	var parent *catalog.Product
	if candidate.ParentProductID != nil {
		var loaded catalog.Product
		found, err := r.repo.FindByID(ctx, db, catalog.EntityProducts, *candidate.ParentProductID, &loaded)
		if err != nil {
			return err
		}
		if found {
			parent = &loaded
		}
	}

	hasParent := candidate.ParentProductID != nil || parentDeferred || parentMissing
	for _, msg := range candidate.LineExtensionViolations(parent, hasParent) {
		out.violate(catalog.ErrLineExtension, "%s", msg)
	}

	if parent == nil || !candidate.IsLineExtension {
		return nil
	}

	_, given := input["launch_sequence"]
	given = given && input["launch_sequence"] != nil
	if !given && candidate.LaunchSequence == nil {
		max, err := r.repo.MaxSiblingLaunchSequence(ctx, db, parent.ProductID, out.existingID)
		if err != nil {
			return err
		}
		next := max + 1
		out.columns["launch_sequence"] = next
		out.computed["launch_sequence"] = next
		return nil
	}

	if candidate.LaunchSequence != nil && *candidate.LaunchSequence > 0 {
		taken, err := r.repo.LaunchSequenceTaken(ctx, db, parent.ProductID, *candidate.LaunchSequence, out.existingID)
		if err != nil {
			return err
		}
		if taken {
			out.violate(catalog.ErrLaunchSequenceConflict, "launch sequence %d is already used under parent %s", *candidate.LaunchSequence, parent.ProductCode)
		}
	}
	return nil
}

func (r *resolver) productLinks(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any) error {
	if raw, ok := input["technology_names"]; ok {
		names, _, err := namesOf(raw, "technology_name")
		if err != nil {
			return err
		}
		if err := r.checkNames(ctx, db, out, "technology_names", "technology_name", names, false); err != nil {
			return err
		}
		out.links = append(out.links, linkIntent{kind: linkProductTechnologies, target: catalog.EntityTechnologies, names: names})
	}

	explicit := map[string]bool{}
	for _, field := range []string{"explicit_challenges", "excluded_challenges"} {
		raw, ok := input[field]
		if !ok {
			continue
		}
		names, notes, err := namesOf(raw, "challenge_name")
		if err != nil {
			return err
		}
		if err := r.checkNames(ctx, db, out, field, "challenge_name", names, false); err != nil {
			return err
		}
		kind := linkExplicitChallenges
		if field == "excluded_challenges" {
			kind = linkExcludedChallenges
			for _, name := range names {
				if explicit[name] {
					out.warn("challenge %q is both explicit and excluded; excluded wins", name)
				}
			}
		} else {
			for _, name := range names {
				explicit[name] = true
			}
		}
		out.links = append(out.links, linkIntent{kind: kind, target: catalog.EntityChallenges, names: names, notes: notes})
	}
	return nil
}

func (r *resolver) resolveTechnology(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any) error {
	if err := r.bind(ctx, db, out, input, "stage_name", "stage_name", "stage_id"); err != nil {
		return err
	}
	if err := r.bind(ctx, db, out, input, "template_name", "template_name", "template_id"); err != nil {
		return err
	}

	field := "modality_names"
	raw, ok := input[field]
	if !ok {
		field = "modality_name"
		raw, ok = input[field]
	}
	if ok {
		names, _, err := namesOf(raw, "modality_name")
		if err != nil {
			return err
		}
		if err := r.checkNames(ctx, db, out, field, "modality_name", names, true); err != nil {
			return err
		}
		out.links = append(out.links, linkIntent{kind: linkTechnologyModalities, target: catalog.EntityModalities, names: names, replace: true})
	}

	if raw, ok := input["challenge_names"]; ok {
		names, _, err := namesOf(raw, "challenge_name")
		if err != nil {
			return err
		}
		if err := r.checkNames(ctx, db, out, "challenge_names", "challenge_name", names, false); err != nil {
			return err
		}
		out.links = append(out.links, linkIntent{kind: linkTechnologyChallenges, target: catalog.EntityChallenges, names: names})
	}
	return nil
}

func (r *resolver) resolveChallenge(ctx context.Context, db *gorm.DB, out *resolved, input map[string]any) error {
	if err := r.bind(ctx, db, out, input, "technology_name", "technology_name", "technology_id"); err != nil {
		return err
	}

	lists := []struct {
		field  string
		key    string
		kind   linkKind
		target catalog.Entity
		hard   bool
	}{
		{field: "product_codes", key: "product_code", kind: linkChallengeProducts, target: catalog.EntityProducts},
		{field: "modality_names", key: "modality_name", kind: linkChallengeModalities, target: catalog.EntityModalities, hard: true},
		{field: "stage_names", key: "stage_name", kind: linkChallengeStages, target: catalog.EntityProcessStages, hard: true},
	}
	for _, l := range lists {
		raw, ok := input[l.field]
		if !ok {
			continue
		}
		names, _, err := namesOf(raw, l.key)
		if err != nil {
			return err
		}
		if err := r.checkNames(ctx, db, out, l.field, l.key, names, l.hard); err != nil {
			return err
		}
		out.links = append(out.links, linkIntent{kind: l.kind, target: l.target, names: names, replace: true})
	}
	return nil
}

func objectsOf(raw any, field string) ([]map[string]any, error) {
	if raw == nil {
		return []map[string]any{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list of objects", errInvalidValue, field)
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be an object", errInvalidValue, field, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

func int64Of(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return json.Number(strings.TrimSpace(t)).Int64()
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}
