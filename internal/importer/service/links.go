package service

import (
	"context"
	"sort"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/gorm"
)

// currentLinks lists the names linked to owner for an intent kind.
func (s *Service) currentLinks(ctx context.Context, db *gorm.DB, kind linkKind, owner int64) ([]string, error) {
	var names []string
	switch kind {
	case linkProductTechnologies:
		items, err := s.repo.ListTechnologiesOfProduct(ctx, db, owner)
		if err != nil {
			return nil, err
		}
		for _, t := range items {
			names = append(names, t.TechnologyName)
		}

	case linkExplicitChallenges, linkExcludedChallenges:
		relationship := catalog.RelationshipExplicit
		if kind == linkExcludedChallenges {
			relationship = catalog.RelationshipExcluded
		}
		items, err := s.repo.ListProductChallenges(ctx, db, owner, relationship)
		if err != nil {
			return nil, err
		}
		for _, c := range items {
			names = append(names, c.ChallengeName)
		}

	case linkChallengeProducts:
		ids, err := s.repo.ListChallengeProductIDs(ctx, db, owner, catalog.RelationshipExplicit)
		if err != nil {
			return nil, err
		}
		return s.namesOfIDs(ctx, db, catalog.EntityProducts, ids)

	case linkChallengeModalities:
		items, err := s.repo.ListModalityChallenges(ctx, db, owner)
		if err != nil {
			return nil, err
		}
		for _, m := range items {
			names = append(names, m.ModalityName)
		}

	case linkChallengeStages:
		ids, err := s.repo.ListChallengeStageIDs(ctx, db, owner)
		if err != nil {
			return nil, err
		}
		return s.namesOfIDs(ctx, db, catalog.EntityProcessStages, ids)

	case linkTechnologyModalities:
		ids, err := s.repo.ListTechnologyModalityIDs(ctx, db, owner)
		if err != nil {
			return nil, err
		}
		return s.namesOfIDs(ctx, db, catalog.EntityModalities, ids)

	case linkTechnologyChallenges:
		items, err := s.repo.ListChallengesOfTechnology(ctx, db, owner)
		if err != nil {
			return nil, err
		}
		for _, c := range items {
			names = append(names, c.ChallengeName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) namesOfIDs(ctx context.Context, db *gorm.DB, entity catalog.Entity, ids []int64) ([]string, error) {
	byID, err := s.repo.NamesByIDs(ctx, db, entity, ids)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(byID))
	for _, name := range byID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// diffLinks compares the link intents of res with what is stored.
func (s *Service) diffLinks(ctx context.Context, db *gorm.DB, res *resolved) (map[string]domain.LinkDiff, error) {
	out := map[string]domain.LinkDiff{}
	for _, intent := range res.links {
		var current []string
		if res.existing != nil {
			var err error
			current, err = s.currentLinks(ctx, db, intent.kind, res.existingID)
			if err != nil {
				return nil, err
			}
		}

		have := toSet(current)
		want := toSet(intent.names)
		diff := domain.LinkDiff{Added: []string{}, Removed: []string{}}
		for _, name := range intent.names {
			if !have[name] {
				diff.Added = append(diff.Added, name)
			}
		}
		if intent.replace {
			for _, name := range current {
				if !want[name] {
					diff.Removed = append(diff.Removed, name)
				}
			}
		}
		if len(diff.Added) == 0 && len(diff.Removed) == 0 {
			continue
		}
		sort.Strings(diff.Added)
		sort.Strings(diff.Removed)
		out[intent.kind.label()] = diff
	}
	return out, nil
}

// applyLinks writes the junction rows of res for owner. Names that do not
// exist are skipped and reported.
func (s *Service) applyLinks(ctx context.Context, tx *gorm.DB, owner int64, res *resolved) ([]string, error) {
	var notes []string
	for _, intent := range res.links {
		ids := make([]int64, 0, len(intent.names))
		byID := map[int64]string{}
		for _, name := range intent.names {
			id, found, err := s.repo.FindIDByName(ctx, tx, intent.target, name)
			if err != nil {
				return nil, err
			}
			if !found {
				notes = append(notes, "skipped link to missing "+string(intent.target)+" "+name)
				continue
			}
			ids = append(ids, id)
			byID[id] = name
		}

		var err error
		switch intent.kind {
		case linkProductTechnologies:
			for _, id := range ids {
				if err = s.repo.AddProductTechnology(ctx, tx, owner, id); err != nil {
					break
				}
			}

		case linkExplicitChallenges, linkExcludedChallenges:
			relationship := catalog.RelationshipExplicit
			if intent.kind == linkExcludedChallenges {
				relationship = catalog.RelationshipExcluded
			}
			for _, id := range ids {
				link := catalog.ProductChallenge{
					ProductID:        owner,
					ChallengeID:      id,
					RelationshipType: relationship,
					Notes:            intent.notes[byID[id]],
				}
				if err = s.repo.UpsertProductChallenge(ctx, tx, link); err != nil {
					break
				}
			}

		case linkChallengeProducts:
			for _, id := range ids {
				link := catalog.ProductChallenge{ProductID: id, ChallengeID: owner, RelationshipType: catalog.RelationshipExplicit}
				if err = s.repo.UpsertProductChallenge(ctx, tx, link); err != nil {
					break
				}
			}
			if err == nil {
				err = s.repo.DeleteProductChallenges(ctx, tx, owner, catalog.RelationshipExplicit, ids)
			}

		case linkChallengeModalities:
			err = s.repo.ReplaceChallengeModalities(ctx, tx, owner, ids)

		case linkChallengeStages:
			err = s.repo.ReplaceChallengeStages(ctx, tx, owner, ids)

		case linkTechnologyModalities:
			err = s.repo.ReplaceTechnologyModalities(ctx, tx, owner, ids)

		case linkTechnologyChallenges:
			for _, id := range ids {
				if err = s.repo.AddTechnologyChallenge(ctx, tx, owner, id); err != nil {
					break
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
