package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not_found")
	ErrInvalidEntity            = errors.New("invalid_entity")
	ErrInvalidField             = errors.New("invalid_field")
	ErrInvalidDate              = errors.New("invalid_date")
	ErrDuplicateName            = errors.New("duplicate_name")
	ErrHierarchyCycle           = errors.New("hierarchy_cycle")
	ErrTemplateModalityMismatch = errors.New("template_modality_mismatch")
	ErrLineExtension            = errors.New("line_extension_violation")
	ErrLaunchSequenceConflict   = errors.New("launch_sequence_conflict")
	ErrReferenced               = errors.New("referenced")
)
