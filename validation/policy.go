package validation

import "github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"

// AnyRestriction disables the restriction level limit of a Policy.
const AnyRestriction = -1

// Policy decides which code systems may be used to answer queries.
//
// A system is prohibited when it is denied explicitly, or when its
// recorded restriction level exceeds MaxRestrictionLevel and it is not
// allowed explicitly.
type Policy struct {
	MaxRestrictionLevel int
	Allow               []string
	Deny                []string
}

// DefaultPolicy prohibits nothing.
func DefaultPolicy() Policy {
	return Policy{MaxRestrictionLevel: AnyRestriction}
}

type compiledPolicy struct {
	maxLevel int
	allow    map[string]bool
	deny     map[string]bool
}

func (p Policy) compile() compiledPolicy {
	c := compiledPolicy{
		maxLevel: p.MaxRestrictionLevel,
		allow:    make(map[string]bool, len(p.Allow)),
		deny:     make(map[string]bool, len(p.Deny)),
	}
	for _, s := range p.Allow {
		c.allow[s] = true
	}
	for _, s := range p.Deny {
		c.deny[s] = true
	}
	return c
}

func (c compiledPolicy) prohibited(system string, md artifact.SystemMetadata, known bool) bool {
	switch {
	case c.deny[system]:
		return true
	case c.allow[system], c.maxLevel == AnyRestriction, !known:
		return false
	}
	return md.RestrictionLevel > c.maxLevel
}
