package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/graft"
)

func checkMorph(cfg *MorphConfig, repo Repository) error {
	switch {
	case cfg == nil:
		return errors.New("morph config is missing")
	case cfg.OwnerField == "" || cfg.RelatedColumn == "" || cfg.TargetType == "":
		return errors.New("morph config requires owner field, related column and target type")
	case !repo.Resolves(cfg.TargetType):
		return fmt.Errorf("morph target %q does not resolve", cfg.TargetType)
	}
	return nil
}

// MorphMatch returns the association row linking parent to the child key.
func MorphMatch(cfg *MorphConfig, parent graft.Entity, childKey any) graft.Payload {
	return graft.Payload{
		cfg.OwnerField + "_id":   parent.Key(),
		cfg.OwnerField + "_type": parent.TypeName(),
		cfg.RelatedColumn:        childKey,
	}
}

// writeMorph upserts the association row of parent and childKey in
// cfg.TargetType. Repeated calls leave one row.
func writeMorph(ctx context.Context, repo Repository, parent graft.Entity, cfg *MorphConfig, childKey any) (graft.Entity, error) {
	if err := checkMorph(cfg, repo); err != nil {
		return nil, graft.NewConfigurationError(parent.TypeName(), "%v", err)
	}
	return repo.Upsert(ctx, cfg.TargetType, MorphMatch(cfg, parent, childKey))
}
