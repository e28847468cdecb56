package datamodel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templateRef matches a {/workflow/...} substring embedded inside a larger
// string (spec.md §4.1).
var templateRef = regexp.MustCompile(`\{(/workflow[^{}]*)\}`)

// Resolver walks operation argument trees and substitutes reference paths
// with the values they point to.
type Resolver struct {
	model *DataModel
}

// NewResolver binds a Resolver to model.
func NewResolver(model *DataModel) *Resolver {
	return &Resolver{model: model}
}

// CollectPaths returns every reference path mentioned in args, in the same
// two forms Resolve substitutes: bare path strings and {path} templates
// embedded in larger strings. Used by the validator's dependency-DAG check
// (spec.md §4.3) before any value is actually resolved.
func CollectPaths(args any) ([]Path, error) {
	var out []Path
	var walk func(v any) error
	walk = func(v any) error {
		switch t := v.(type) {
		case string:
			if LooksLikePath(t) {
				p, err := ParsePath(t)
				if err != nil {
					return err
				}
				out = append(out, p)
				return nil
			}
			for _, m := range templateRef.FindAllStringSubmatch(t, -1) {
				p, err := ParsePath(m[1])
				if err != nil {
					return err
				}
				out = append(out, p)
			}
			return nil
		case map[string]any:
			for _, val := range t {
				if err := walk(val); err != nil {
					return err
				}
			}
			return nil
		case []any:
			for _, val := range t {
				if err := walk(val); err != nil {
					return err
				}
			}
			return nil
		default:
			return nil
		}
	}
	if err := walk(args); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve returns a deep copy of args with every reference path substituted
// for the value it points to: a bare string equal to a path is replaced by
// the referenced value itself (any JSON shape); a {path} template embedded
// in a larger string is replaced by the value's string form.
func (r *Resolver) Resolve(args any) (any, error) {
	switch t := args.(type) {
	case string:
		if LooksLikePath(t) {
			p, err := ParsePath(t)
			if err != nil {
				return nil, err
			}
			return r.model.Read(p)
		}
		if templateRef.MatchString(t) {
			var resolveErr error
			out := templateRef.ReplaceAllStringFunc(t, func(m string) string {
				raw := templateRef.FindStringSubmatch(m)[1]
				p, err := ParsePath(raw)
				if err != nil {
					resolveErr = err
					return m
				}
				v, err := r.model.Read(p)
				if err != nil {
					resolveErr = err
					return m
				}
				return toString(v)
			})
			if resolveErr != nil {
				return nil, resolveErr
			}
			return out, nil
		}
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := r.Resolve(v)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := r.Resolve(v)
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

// toString renders a resolved value for substitution into a {path}
// template, matching JSON's natural scalar rendering; objects/arrays
// render as compact JSON-ish Go syntax since spec.md does not mandate a
// specific serialization for non-scalar template substitution.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// IsTemplate reports whether s contains at least one {/workflow/...}
// template reference.
func IsTemplate(s string) bool { return templateRef.MatchString(s) }

// StripRoot removes the Root prefix, used by callers that need the bare
// relative segment string (e.g. for error messages).
func StripRoot(raw string) string { return strings.TrimPrefix(raw, Root) }
