package obs

import "strings"

// collections lists the API resource collections whose members are addressed
// by identifier. Used to collapse metric label cardinality.
var collections = map[string]bool{
	"campaigns":     true,
	"distributions": true,
	"invoices":      true,
	"payments":      true,
	"entities":      true,
	"sites":         true,
	"roles":         true,
	"users":         true,
	"proofs":        true,
}

// CanonicalPath rewrites an identifier-bearing request path to its route
// template (e.g. /v1/campaigns/01ABC -> /v1/campaigns/:id) so metric labels
// stay bounded. Query strings are stripped.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || !collections[parts[1]] {
		return path
	}
	parts[2] = ":id"
	return "/" + strings.Join(parts, "/")
}
