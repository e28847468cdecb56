package credential

import "context"

// UseFunc is invoked once per credential reference actually resolved,
// before the resolved value is substituted, so callers (the executor) can
// emit a CredentialUsed audit event naming the credential ID and operation
// but never the value (spec.md §4.4 step 3, §4.8).
type UseFunc func(id string)

// ResolveRefs walks args recursively, replacing every {credentialRef:{id}}
// literal with its formatted resolved value. onUse, if non-nil, is called
// for each reference resolved.
func ResolveRefs(ctx context.Context, args any, resolver Resolver, onUse UseFunc) (any, error) {
	if ref, ok := ExtractRef(args); ok {
		value, typ, err := resolver.Resolve(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if onUse != nil {
			onUse(ref.ID)
		}
		return Format(value, typ), nil
	}

	switch t := args.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := ResolveRefs(ctx, v, resolver, onUse)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := ResolveRefs(ctx, v, resolver, onUse)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return t, nil
	}
}

// Canonicalize walks args recursively replacing every credential reference
// with PlaceholderValue, without resolving it — used to build the cache
// key so entries are never keyed on secrets (spec.md §4.4 step 4). The
// executor calls it on the path-resolved args before credential
// resolution, while references are still {credentialRef:...} literals; on
// an already credential-resolved view it finds nothing to replace.
func Canonicalize(args any) any {
	if _, ok := ExtractRef(args); ok {
		return PlaceholderValue
	}
	switch t := args.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = Canonicalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = Canonicalize(v)
		}
		return out
	default:
		return t
	}
}

// FindRefIDs returns every credential ID referenced anywhere in args,
// de-duplicated in first-seen order. Used by the validator's permission
// check (spec.md §4.3 step 2).
func FindRefIDs(args any) []string {
	seen := make(map[string]bool)
	var order []string
	var walk func(v any)
	walk = func(v any) {
		if ref, ok := ExtractRef(v); ok {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				order = append(order, ref.ID)
			}
			return
		}
		switch t := v.(type) {
		case map[string]any:
			for _, val := range t {
				walk(val)
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		}
	}
	walk(args)
	return order
}
