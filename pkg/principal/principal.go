// Package principal defines the (tenant, user) scoping key shared by the
// hot index, hot turn store, cold store, and retriever, per spec.md §3.
package principal

import "strings"

// Principal is the opaque (tenant_id, user_id) pair every stored object
// and query is scoped by. Two Principals are equal iff both fields match;
// no operation may read or write another principal's data.
type Principal struct {
	Tenant string
	User   string
}

// Key renders the principal as "tenant:user", the canonical in-memory key
// used by the hot tier.
func (p Principal) Key() string {
	return p.Tenant + ":" + p.User
}

// SanitizedFileName renders the principal as a filesystem-safe name by
// replacing ':', '/', and '\' with '_', per spec.md §4.2/§6.
func (p Principal) SanitizedFileName() string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(p.Key())
}
