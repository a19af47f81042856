package instrument

import (
	"strconv"
	"strings"
)

// Reading is the answer to a get command.
type Reading struct {
	Value float64
	Units string
	State string
}

// String renders the reading as "value,units,state", the result format of
// every get command.
func (r Reading) String() string {
	return strconv.FormatFloat(r.Value, 'f', -1, 64) + "," + r.Units + "," + r.State
}

// Command is one instrument subsystem reachable through the protocol. The
// same value serves the server, which calls GetState and SetState against a
// Driver, and the client, which parses results with ConvertResult.
type Command interface {
	// Name is the action that addresses the command, for example "TEMP".
	Name() string
	Units() string
	Subsystem() Subsystem

	// DecodeStateCode maps a raw status code to its label.
	DecodeStateCode(code int) (string, error)
	// Stable reports whether a state label means the subsystem settled.
	Stable(state string) bool

	// GetState answers a get request. Most commands ignore query.
	GetState(d Driver, query string) (Reading, error)
	SetState(d Driver, query string) error

	// ConvertResult parses the result of a get command.
	ConvertResult(result string) (Reading, error)
}

// Subsystem is a bitmask of instrument subsystems.
type Subsystem uint8

const (
	SubsystemTemperature Subsystem = 1 << iota
	SubsystemField
	SubsystemChamber
)

// SubsystemAll selects every subsystem.
const SubsystemAll = SubsystemTemperature | SubsystemField | SubsystemChamber

// Has reports whether s includes every bit of other.
func (s Subsystem) Has(other Subsystem) bool {
	return s&other == other
}

func (s Subsystem) String() string {
	var names []string
	if s.Has(SubsystemTemperature) {
		names = append(names, "temperature")
	}
	if s.Has(SubsystemField) {
		names = append(names, "field")
	}
	if s.Has(SubsystemChamber) {
		names = append(names, "chamber")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// stateTable maps status codes to labels.
type stateTable map[int]string

func (t stateTable) decode(command string, code int) (string, error) {
	label, ok := t[code]
	if !ok {
		return "", Errorf("%s returned unknown state code %d", command, code)
	}
	return label, nil
}

// convertResult parses "value,units,state".
func convertResult(command, result string) (Reading, error) {
	parts := strings.SplitN(result, ",", 3)
	if len(parts) != 3 {
		return Reading{}, Errorf("%s: malformed result %q", command, result)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Reading{}, Errorf("%s: malformed value %q", command, parts[0])
	}
	return Reading{
		Value: value,
		Units: strings.TrimSpace(parts[1]),
		State: strings.TrimSpace(parts[2]),
	}, nil
}

// splitQuery splits a comma-separated set query into exactly n fields.
func splitQuery(command, query string, n int) ([]string, error) {
	fields := strings.Split(query, ",")
	if len(fields) != n {
		return nil, Errorf("%s expects %d comma-separated arguments, got %q", command, n, query)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

func parseFloatArg(command, name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, Errorf("%s: invalid %s %q", command, name, s)
	}
	return v, nil
}

func parseIntArg(command, name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, Errorf("%s: invalid %s %q", command, name, s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
