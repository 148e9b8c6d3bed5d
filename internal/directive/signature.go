package directive

import "go/types"

// =============================================================================
// Signature Validation
// =============================================================================

// hasPointerParameter checks if a function signature has any parameter whose
// type is, or contains, a pointer.
func hasPointerParameter(sig *types.Signature) bool {
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		if containsPointer(params.At(i).Type()) {
			return true
		}
	}
	return false
}

// containsPointer checks if a type contains a pointer anywhere in its
// structure. It recursively checks struct fields, slices, arrays, maps, and
// channels, with cycle detection for recursive type definitions.
func containsPointer(t types.Type) bool {
	cache := make(map[types.Type]*cacheEntry)
	return containsPointerWithCache(t, cache)
}

// cacheEntry tracks the state of type checking to handle cycles.
type cacheEntry struct {
	inProgress bool // Currently being checked (for cycle detection)
	result     bool // Cached result after checking
}

func containsPointerWithCache(t types.Type, cache map[types.Type]*cacheEntry) bool {
	if t == nil {
		return false
	}

	if entry, ok := cache[t]; ok {
		if entry.inProgress {
			return false
		}
		return entry.result
	}

	cache[t] = &cacheEntry{inProgress: true}

	underlying := t.Underlying()
	if _, ok := underlying.(*types.Pointer); ok {
		cache[t] = &cacheEntry{inProgress: false, result: true}
		return true
	}

	result := false
	switch typ := underlying.(type) {
	case *types.Struct:
		for i := 0; i < typ.NumFields(); i++ {
			if containsPointerWithCache(typ.Field(i).Type(), cache) {
				result = true
				break
			}
		}
	case *types.Pointer:
		result = true
	case *types.Slice:
		result = containsPointerWithCache(typ.Elem(), cache)
	case *types.Array:
		result = containsPointerWithCache(typ.Elem(), cache)
	case *types.Map:
		result = containsPointerWithCache(typ.Key(), cache) || containsPointerWithCache(typ.Elem(), cache)
	case *types.Chan:
		result = containsPointerWithCache(typ.Elem(), cache)
	case *types.Interface:
		// An interface value may hold a pointer at runtime; treated as
		// pointer-shaped for directive-signature validation purposes.
		result = true
	}

	cache[t] = &cacheEntry{inProgress: false, result: result}
	return result
}
