/*
lineage.go - Read-side lineage queries

PURPOSE:
  Walks the genealogy graph the write side maintains: the split-successor
  chain from any ancestor to its current-generation descendant, and the
  activity trail per source document.
*/
package genealogy

import (
	"context"
	"fmt"
)

// Descendant follows SplitEntityID forward pointers from id to the
// current-generation descendant. Returns the entity itself when it has
// never been split.
func Descendant(ctx context.Context, entities EntityStore, id EntityID) (*TrackedEntity, error) {
	visited := make(map[EntityID]bool)
	current := id
	for {
		if visited[current] {
			return nil, fmt.Errorf("lineage cycle at entity %s", current)
		}
		visited[current] = true

		e, err := entities.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		if e.Attributes.SplitEntityID == "" {
			return e, nil
		}
		current = e.Attributes.SplitEntityID
	}
}

// Trail returns the full activity trail for a source document, oldest
// first, edges included.
func Trail(ctx context.Context, activities ActivityStore, documentID string) ([]*TrackedActivity, error) {
	return activities.ForDocument(ctx, documentID)
}
