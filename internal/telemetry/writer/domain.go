// Package writer buffers the latest snapshot per domain and periodically
// persists all six as JSON files in the session directory.
package writer

import (
	"errors"
	"fmt"
)

// Domain identifies one of the six snapshot files.
type Domain int

const (
	Metadata Domain = iota
	Suspension
	Tires
	Aero
	Drivetrain
	Balance

	numDomains
)

var domainNames = [numDomains]string{
	Metadata:   "metadata",
	Suspension: "suspension",
	Tires:      "tires",
	Aero:       "aero",
	Drivetrain: "drivetrain",
	Balance:    "balance",
}

// Domains lists every domain in file order.
func Domains() []Domain {
	out := make([]Domain, numDomains)
	for i := range out {
		out[i] = Domain(i)
	}
	return out
}

// Name returns the domain's lower-case name.
func (d Domain) Name() string {
	if d < 0 || d >= numDomains {
		return fmt.Sprintf("domain(%d)", int(d))
	}
	return domainNames[d]
}

func (d Domain) String() string { return d.Name() }

// Filename returns the snapshot file name, e.g. "tires.json".
func (d Domain) Filename() string {
	return d.Name() + ".json"
}

// ErrUnknownDomain is returned by ParseDomain for names outside the six
// domains.
var ErrUnknownDomain = errors.New("unknown domain")

// ParseDomain looks a domain up by name.
func ParseDomain(name string) (Domain, error) {
	for i, n := range domainNames {
		if n == name {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownDomain, name)
}
