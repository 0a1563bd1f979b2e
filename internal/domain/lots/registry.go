package lots

import "strings"

// defaultSiteCodes lists the sites whose lots carry a type1 identifier.
var defaultSiteCodes = []string{
	"CANCB",
	"CB2TV",
	"CPKU1",
	"CYKTV",
	"SBAMA",
}

// Registry is a fixed set of 5-character site codes.
type Registry struct {
	codes map[string]struct{}
}

// NewRegistry builds a registry from the given codes. Codes are upper-cased;
// entries that are not exactly five characters long are ignored.
func NewRegistry(codes ...string) *Registry {
	r := &Registry{codes: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len([]rune(code)) != sitePrefixLen {
			continue
		}
		r.codes[code] = struct{}{}
	}
	return r
}

// DefaultRegistry returns the built-in site codes extended with extra.
func DefaultRegistry(extra ...string) *Registry {
	return NewRegistry(append(append([]string{}, defaultSiteCodes...), extra...)...)
}

// Contains reports whether code is a registered site. Matching is case-sensitive
// on the lot side since identifiers are emitted upper-case by the ERP.
func (r *Registry) Contains(code string) bool {
	if r == nil {
		return false
	}
	_, ok := r.codes[code]
	return ok
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.codes)
}
