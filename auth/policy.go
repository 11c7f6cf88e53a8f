package auth

// Policy decides whether a set of satisfied credential kinds completes
// authentication for a given protocol. Policies are pure and never touch
// storage; building the effective policy for a user is the configuration
// provider's job.
type Policy interface {
	IsSatisfied(protocol string, satisfied KindSet) bool
}

// AnySinglePolicy is satisfied by one credential of any supported kind.
type AnySinglePolicy struct {
	Supported []CredentialKind
}

var _ Policy = AnySinglePolicy{}

func (p AnySinglePolicy) IsSatisfied(_ string, satisfied KindSet) bool {
	return satisfied.Intersects(p.Supported)
}

// AllPolicy requires every one of its required kinds to be satisfied.
// Required is typically a subset of Supported; an empty Required set is
// trivially satisfied.
type AllPolicy struct {
	Supported []CredentialKind
	Required  []CredentialKind
}

var _ Policy = AllPolicy{}

func (p AllPolicy) IsSatisfied(_ string, satisfied KindSet) bool {
	return satisfied.ContainsAll(p.Required)
}

// PerProtocolPolicy dispatches to a protocol-specific policy when one is
// configured for the protocol being authenticated, falling back to Default
// otherwise.
type PerProtocolPolicy struct {
	Default   Policy
	Protocols map[string]Policy
}

var _ Policy = PerProtocolPolicy{}

func (p PerProtocolPolicy) IsSatisfied(protocol string, satisfied KindSet) bool {
	if sub, ok := p.Protocols[protocol]; ok {
		return sub.IsSatisfied(protocol, satisfied)
	}
	return p.Default.IsSatisfied(protocol, satisfied)
}
