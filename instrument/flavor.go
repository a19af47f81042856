package instrument

import "strings"

// Flavor is the Quantum Design platform a server drives.
type Flavor string

// Known flavors.
const (
	PPMS     Flavor = "PPMS"
	DynaCool Flavor = "DynaCool"
	VersaLab Flavor = "VersaLab"
	MPMS3    Flavor = "MPMS3"
	OptiCool Flavor = "OptiCool"
)

// Flavors lists every known flavor.
var Flavors = []Flavor{PPMS, DynaCool, VersaLab, MPMS3, OptiCool}

// ParseFlavor matches name against the known flavors, ignoring case.
func ParseFlavor(name string) (Flavor, error) {
	for _, f := range Flavors {
		if strings.EqualFold(string(f), strings.TrimSpace(name)) {
			return f, nil
		}
	}
	return "", Errorf("unknown instrument flavor %q", name)
}

func (f Flavor) String() string {
	return string(f)
}
