package catalog

import (
	"context"
	"maps"

	"dario.cat/mergo"
)

// mergeDefinitions overlays patch's non-zero fields onto base using mergo.
// Maps are merged key-by-key (mergo.WithOverride) so a patch can update a
// single env var without clobbering the rest.
func mergeDefinitions(_ context.Context, base, patch ServerDefinition) (ServerDefinition, error) {
	merged := base
	// Clone the maps so mergo writes into copies, leaving base untouched.
	merged.Env = maps.Clone(base.Env)
	merged.Meta = maps.Clone(base.Meta)
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return ServerDefinition{}, err
	}
	// mergo.WithOverride merges Name too if patch.Name is set; restore the
	// original name explicitly since a server is never renamed in-place.
	merged.Name = base.Name
	return merged, nil
}
