package extract

import (
	"strings"

	"github.com/graphmill/graphmill/pkg/common"
)

// dedupeEntities collapses candidates that share the (lowercased name, type)
// identity, keeping the occurrence with the highest confidence. Input order
// is preserved for the surviving entities, so the operation is idempotent.
func dedupeEntities(entities []common.Entity) []common.Entity {
	byKey := make(map[string]int, len(entities))
	out := make([]common.Entity, 0, len(entities))

	for _, entity := range entities {
		key := entity.DedupeKey()
		if i, ok := byKey[key]; ok {
			if entity.Confidence > out[i].Confidence {
				id := out[i].ID
				out[i] = entity
				out[i].ID = id
			}
			continue
		}
		byKey[key] = len(out)
		out = append(out, entity)
	}

	return out
}

// entityNameIndex maps normalized lowercased entity names to IDs for
// endpoint resolution. When two entities of different types share a name the
// first one wins.
func entityNameIndex(entities []common.Entity) map[string]string {
	index := make(map[string]string, len(entities))
	for _, entity := range entities {
		name := strings.ToLower(common.NormalizeName(entity.Name))
		if _, ok := index[name]; !ok {
			index[name] = entity.ID
		}
	}
	return index
}
