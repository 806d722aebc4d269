/*
Package scope resolves {{variable}} templates against an ordered chain of variable sets.

# Precedence

A Chain is searched front to back and the first enabled entry wins. The CLI
builds the chain as local (--var), environment, collection, globals, vault.

# Domain-gated secrets

Entries carrying a _domains list are only substituted when the request host
matches one of the patterns. ResolveURL resolves the request URL with
unrestricted entries first, takes the host from that result, and only then
lets restricted entries take part. Every other field of the same request is
resolved against that one Target.

	resolver := scope.NewResolver(chain)
	url, target := resolver.ResolveURL("https://{{host}}/get?key={{vault:key}}")
	auth := resolver.Resolve("{{vault:token}}", target)

Unresolved templates are left verbatim and never produce an error.
*/
package scope
