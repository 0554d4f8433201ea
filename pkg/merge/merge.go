// Package merge applies handler patches to widget values.
//
// Merging is a shallow per-id replace: ids absent from the patch keep their
// value, present ids are replaced whole. The changed set is computed with the
// equality rule of each widget kind.
package merge

import (
	"fmt"
	"sort"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/schema"
	"github.com/aretw0/toolbake/pkg/widget"
)

// Apply merges patch into values and returns the next values and the ids
// whose value changed, sorted. The input map is never modified.
//
// Apply is all-or-nothing: if any entry references an unknown widget or
// carries a value that cannot be stored, no entry is applied and the error
// wraps domain.ErrMergeContract.
func Apply(kinds widget.Kinds, values domain.Values, patch domain.Patch) (domain.Values, []string, error) {
	if len(patch) == 0 {
		return values, nil, nil
	}

	normalized := make(map[string]any, len(patch))
	for _, id := range patch.Keys() {
		kind, ok := kinds[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %w %q", domain.ErrMergeContract, domain.ErrUnknownWidget, id)
		}
		raw := patch[id]
		if err := schema.Storable().Validate(raw); err != nil {
			return nil, nil, fmt.Errorf("%w: widget %q: %w", domain.ErrMergeContract, id, err)
		}
		v, err := kind.Normalize(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: widget %q: %w", domain.ErrMergeContract, id, err)
		}
		normalized[id] = v
	}

	next := values.Clone()
	var changed []string
	for id, v := range normalized {
		prev, existed := values[id]
		if !existed || !kinds[id].Equal(prev, v) {
			changed = append(changed, id)
		}
		next[id] = v
	}
	sort.Strings(changed)
	return next, changed, nil
}
