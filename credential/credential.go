// Package credential defines the CredentialResolver port and the
// structural credential-reference marker (spec.md §3/§4.4/§9). It never
// exposes a resolved value outside the executor's own dispatch path.
package credential

import "context"

// Type names the credential formatting rule applied to a resolved value
// (spec.md §3).
type Type string

const (
	TypeBearerToken Type = "bearer-token"
	TypeAPIKey      Type = "api-key"
	TypeOpaque      Type = "opaque" // verbatim, no special formatting
)

// Resolver maps a credential ID to its plaintext value and type. The
// encryption-at-rest store behind it is out of scope (spec.md §1); this is
// the seam the executor calls through.
type Resolver interface {
	Resolve(ctx context.Context, id string) (value string, typ Type, err error)
}

// Format applies the formatting rule for typ to value, per spec.md §3:
// bearer-token -> "Bearer " + value, api-key -> value, anything else
// verbatim.
func Format(value string, typ Type) string {
	switch typ {
	case TypeBearerToken:
		return "Bearer " + value
	case TypeAPIKey:
		return value
	default:
		return value
	}
}

// Ref is the structural literal {credentialRef: {id: string}} recognized
// anywhere inside operation args (spec.md §3).
type Ref struct {
	ID string
}

// ExtractRef reports whether v is a credential-reference literal and, if
// so, returns its ID. v is expected to be the JSON-decoded shape
// map[string]any{"credentialRef": map[string]any{"id": "..."}}.
func ExtractRef(v any) (Ref, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return Ref{}, false
	}
	inner, ok := m["credentialRef"]
	if !ok {
		return Ref{}, false
	}
	innerMap, ok := inner.(map[string]any)
	if !ok {
		return Ref{}, false
	}
	id, ok := innerMap["id"].(string)
	if !ok || id == "" {
		return Ref{}, false
	}
	return Ref{ID: id}, true
}

// PlaceholderValue is substituted for a resolved credential field when
// building the cache key's canonical args view, so cache entries are
// never keyed on secrets (spec.md §4.4 step 4).
const PlaceholderValue = " credential-placeholder "
