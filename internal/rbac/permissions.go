package rbac

import (
	"encoding/json"
	"sort"
)

// Well-known role names with special evaluation or visibility semantics.
const (
	RoleSuperAdmin = "super_admin"
	RolePartner    = "partner"
	RoleClient     = "client"
)

// PermissionSet is the canonical in-memory form of a role permission document.
// A document is either the all-access sentinel {"all": true} or a mapping of
// module name to allowed action names. Both storage and the wire use the
// document form; everything past the storage boundary uses this type.
type PermissionSet struct {
	All     bool
	Modules map[string]map[string]struct{}
}

// EmptyPermissionSet denies everything.
func EmptyPermissionSet() PermissionSet {
	return PermissionSet{Modules: map[string]map[string]struct{}{}}
}

// AllPermissions is the all-access sentinel.
func AllPermissions() PermissionSet {
	return PermissionSet{All: true, Modules: map[string]map[string]struct{}{}}
}

// Allows reports whether the set grants the action on the module.
func (s PermissionSet) Allows(module, action string) bool {
	if s.All {
		return true
	}
	if module == "" || action == "" {
		return false
	}
	actions, ok := s.Modules[module]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// IsEmpty reports whether the set denies everything.
func (s PermissionSet) IsEmpty() bool {
	return !s.All && len(s.Modules) == 0
}

// ParsePermissions normalizes a serialized permission document. Malformed
// input yields the empty set: a corrupt document denies rather than grants.
func ParsePermissions(raw []byte) PermissionSet {
	if len(raw) == 0 {
		return EmptyPermissionSet()
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return EmptyPermissionSet()
	}
	return FromDocument(doc)
}

// FromDocument normalizes an already-parsed permission document. Unknown
// value shapes are skipped; the all-access sentinel wins when present and true.
func FromDocument(doc map[string]any) PermissionSet {
	set := EmptyPermissionSet()
	for module, value := range doc {
		if module == "all" {
			if b, ok := value.(bool); ok && b {
				set.All = true
			}
			continue
		}
		actions := map[string]struct{}{}
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if action, ok := item.(string); ok && action != "" {
					actions[action] = struct{}{}
				}
			}
		case []string:
			for _, action := range v {
				if action != "" {
					actions[action] = struct{}{}
				}
			}
		}
		if len(actions) > 0 {
			set.Modules[module] = actions
		}
	}
	return set
}

// Document returns the serializable form of the set.
func (s PermissionSet) Document() map[string]any {
	if s.All {
		return map[string]any{"all": true}
	}
	doc := make(map[string]any, len(s.Modules))
	for module, actions := range s.Modules {
		list := make([]string, 0, len(actions))
		for action := range actions {
			list = append(list, action)
		}
		sort.Strings(list)
		doc[module] = list
	}
	return doc
}

// MarshalJSON encodes the document form.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// UnmarshalJSON decodes the document form, fail-closed like ParsePermissions.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	*s = ParsePermissions(data)
	return nil
}
