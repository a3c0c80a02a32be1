package service

import (
	"context"

	"github.com/syssam/graft"
)

// keepKeys returns the key of every incoming element. Elements without a key
// count as 0, the key no stored row is expected to have.
func keepKeys(incoming []graft.Payload, keyName string) []any {
	keep := make([]any, 0, len(incoming))
	for _, el := range incoming {
		if k, ok := el[keyName]; ok && k != nil {
			keep = append(keep, k)
			continue
		}
		keep = append(keep, 0)
	}
	return keep
}

// reconcile deletes the rows related to parent through relation whose key is
// not carried by any incoming element. A pivot row is deleted together with
// the record it owns; other related rows are deleted themselves. It returns
// the relation name and the number of related rows dropped.
func reconcile(ctx context.Context, repo Repository, parent graft.Entity, relation string, incoming []graft.Payload, keyName string) (string, int, error) {
	stale, err := repo.Related(ctx, parent, relation, keepKeys(incoming, keyName))
	if err != nil {
		return relation, 0, err
	}
	for _, rel := range stale {
		if rel.Pivot == nil {
			if err := repo.Remove(ctx, rel.Entity); err != nil {
				return relation, 0, err
			}
			continue
		}
		if rel.Owned != nil {
			if err := repo.Remove(ctx, rel.Owned); err != nil {
				return relation, 0, err
			}
		}
		if err := repo.Remove(ctx, rel.Pivot); err != nil {
			return relation, 0, err
		}
	}
	return relation, len(stale), nil
}
