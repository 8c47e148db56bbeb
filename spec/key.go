package spec

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// A CacheKey identifies a ModelSpec for fit caching: equal keys mean the
// fit may be shared, distinct keys mean a fresh fit.
type CacheKey string

// Key derives the spec's CacheKey from its canonical rendering. Everything
// that can change sampler output participates, the seed included: changing
// only the seed is deliberately a cache miss, since draws are
// seed-dependent. Field order is fixed here and priors arrive already
// canonically ordered from Build, so semantically identical specs hash
// identically.
func (s *ModelSpec) Key() CacheKey {
	var sb strings.Builder

	sb.WriteString("formula=")
	sb.WriteString(s.Formula.Canonical())
	sb.WriteString("\ndata=")
	sb.WriteString(s.DataFingerprint)
	sb.WriteString("\nfamily=")
	sb.WriteString(s.Family)

	sb.WriteString("\npriors=")
	for _, p := range s.Priors {
		sb.WriteString(p.Class)
		if len(p.Coef) > 0 {
			sb.WriteString("[" + p.Coef + "]")
		}
		sb.WriteString("~")
		sb.WriteString(p.Dist.String())
		sb.WriteString(";")
	}

	c := s.Config
	fmt.Fprintf(&sb, "\nconfig=chains:%d,iter:%d,warmup:%d,seed:%d,adapt_delta:%g,cores:%d",
		c.Chains, c.Iter, c.Warmup, c.Seed, c.AdaptDelta, c.Cores)

	return CacheKey(fmt.Sprintf("%x", sha256.Sum256([]byte(sb.String()))))
}
