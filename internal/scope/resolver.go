package scope

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds nested resolution of values that contain templates
const DefaultMaxDepth = 19

var varPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Resolution is the outcome of looking up one template token
type Resolution struct {
	Token    string // the literal {{name}} text
	Value    string
	Resolved bool
	Set      string // name of the set that supplied the value
}

// String collapses the resolution to the text that is substituted
func (r Resolution) String() string {
	if r.Resolved {
		return r.Value
	}
	return r.Token
}

// Resolver substitutes templates from a chain. It is safe for concurrent use
// because the chain is never modified after construction.
type Resolver struct {
	chain    *Chain
	maxDepth int
	logger   *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used for gate decisions
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxDepth sets how many times a resolved value is itself resolved
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth >= 0 {
			r.maxDepth = depth
		}
	}
}

// NewResolver creates a resolver over chain
func NewResolver(chain *Chain, opts ...Option) *Resolver {
	r := &Resolver{
		chain:    chain,
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("scope")
	return r
}

// Chain returns the chain the resolver reads from
func (r *Resolver) Chain() *Chain {
	return r.chain
}

// Lookup walks the chain for name. Restricted entries the target does not permit
// are passed over and the walk continues with lower-precedence sets.
func (r *Resolver) Lookup(name string, target Target) Resolution {
	res := Resolution{Token: "{{" + name + "}}"}
	key := strings.TrimSpace(name)
	if key == "" {
		return res
	}

	for _, set := range r.chain.Sets() {
		entry, ok := set.Lookup(key)
		if !ok {
			continue
		}
		if entry.Restricted() && !Permits(entry.Domains, target) {
			r.logger.Debug("restricted variable withheld",
				zap.String("key", key),
				zap.String("set", set.Name()),
				zap.Stringer("target", target))
			continue
		}
		res.Value = entry.Value
		res.Resolved = true
		res.Set = set.Name()
		return res
	}
	return res
}

// Resolve replaces every {{name}} in template. Unknown names are left untouched.
func (r *Resolver) Resolve(template string, target Target) string {
	return r.resolve(template, target, 0)
}

func (r *Resolver) resolve(template string, target Target, depth int) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		res := r.Lookup(name, target)
		if !res.Resolved {
			return match
		}
		if depth < r.maxDepth && strings.Contains(res.Value, "{{") {
			return r.resolve(res.Value, target, depth+1)
		}
		return res.Value
	})
}

// ResolveURL resolves a request URL in two passes. The first pass uses unrestricted
// entries only; its host becomes the Target. The second pass admits restricted
// entries permitted for that host. If the second pass would move the request to
// a different host the first pass result is kept.
func (r *Resolver) ResolveURL(raw string) (string, Target) {
	first := r.Resolve(raw, UnknownTarget())
	target := TargetFromURL(first)
	if !target.Known() {
		return first, target
	}

	second := r.Resolve(raw, target)
	if moved := TargetFromURL(second); !moved.Known() || moved.Host() != target.Host() {
		r.logger.Debug("restricted variables would change the request host, keeping first pass",
			zap.String("host", target.Host()))
		return first, target
	}
	return second, target
}
