package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SdoType is the data type of a CANopen service data object.
type SdoType int

const (
	SdoInt16 SdoType = iota
	SdoUint16
	SdoInt32
	SdoUint32
	SdoFloat32
)

var sdoTypeNames = [...]string{"I16", "U16", "I32", "U32", "F32"}

func (t SdoType) String() string {
	if t < 0 || int(t) >= len(sdoTypeNames) {
		return fmt.Sprintf("sdotype(%d)", int(t))
	}
	return sdoTypeNames[t]
}

// ParseSdoType accepts a type name such as "U16", ignoring case, or its number.
func ParseSdoType(s string) (SdoType, error) {
	s = strings.TrimSpace(s)
	for i, name := range sdoTypeNames {
		if strings.EqualFold(name, s) {
			return SdoType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(sdoTypeNames) {
		return SdoType(n), nil
	}
	return 0, Errorf("unknown SDO type %q", s)
}

// check reports whether v fits the type.
func (t SdoType) check(v float64) error {
	var lo, hi float64
	switch t {
	case SdoInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case SdoUint16:
		lo, hi = 0, math.MaxUint16
	case SdoInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	case SdoUint32:
		lo, hi = 0, math.MaxUint32
	case SdoFloat32:
		if math.IsNaN(v) || math.Abs(v) > math.MaxFloat32 {
			return Errorf("SDO value %s does not fit %s", formatFloat(v), t)
		}
		return nil
	default:
		return Errorf("unknown SDO type %d", int(t))
	}
	if v != math.Trunc(v) || v < lo || v > hi {
		return Errorf("SDO value %s does not fit %s", formatFloat(v), t)
	}
	return nil
}

// SdoObject addresses one entry in a CANopen node's object dictionary.
type SdoObject struct {
	Node  int
	Index int
	Sub   int
	Type  SdoType
}

// String renders the object as the "node,index,sub,type" query prefix.
func (o SdoObject) String() string {
	return fmt.Sprintf("%d,%d,%d,%s", o.Node, o.Index, o.Sub, o.Type)
}

func (o SdoObject) validate() error {
	if o.Node < 0 || o.Node > 127 {
		return Errorf("SDO node %d is outside 0 to 127", o.Node)
	}
	if o.Index < 0 || o.Index > 0xFFFF {
		return Errorf("SDO index %#x is outside 0 to 0xffff", o.Index)
	}
	if o.Sub < 0 || o.Sub > 0xFF {
		return Errorf("SDO sub-index %d is outside 0 to 255", o.Sub)
	}
	if o.Type < 0 || int(o.Type) >= len(sdoTypeNames) {
		return Errorf("unknown SDO type %d", int(o.Type))
	}
	return nil
}

// SDO call status codes.
const (
	SdoSuccess = 0
	SdoFailed  = 1
)

var sdoStates = stateTable{
	0: "Call Success",
	1: "Call Failed",
}

// SdoCommand is the SDO command. Get queries are "node,index,sub,type" and
// set queries append the value. Integers may be written in hex, for
// example "0x6041".
type SdoCommand struct{}

// NewSdoCommand returns the SDO command.
func NewSdoCommand() *SdoCommand {
	return &SdoCommand{}
}

func (c *SdoCommand) Name() string         { return "SDO" }
func (c *SdoCommand) Units() string        { return "" }
func (c *SdoCommand) Subsystem() Subsystem { return 0 }

func (c *SdoCommand) DecodeStateCode(code int) (string, error) {
	return sdoStates.decode(c.Name(), code)
}

func (c *SdoCommand) Stable(state string) bool {
	return state == sdoStates[SdoSuccess]
}

// PrepareQuery validates obj and renders a get query.
func (c *SdoCommand) PrepareQuery(obj SdoObject) (string, error) {
	if err := obj.validate(); err != nil {
		return "", err
	}
	return obj.String(), nil
}

// PrepareSetQuery validates obj and value and renders a set query.
func (c *SdoCommand) PrepareSetQuery(obj SdoObject, value float64) (string, error) {
	if err := obj.validate(); err != nil {
		return "", err
	}
	if err := obj.Type.check(value); err != nil {
		return "", err
	}
	return obj.String() + "," + formatFloat(value), nil
}

// parseObject reads the first four fields of an SDO query.
func (c *SdoCommand) parseObject(fields []string) (SdoObject, error) {
	var addr [3]int
	for i, name := range []string{"node", "index", "sub-index"} {
		v, err := strconv.ParseInt(fields[i], 0, 64)
		if err != nil {
			return SdoObject{}, Errorf("%s: invalid %s %q", c.Name(), name, fields[i])
		}
		addr[i] = int(v)
	}
	typ, err := ParseSdoType(fields[3])
	if err != nil {
		return SdoObject{}, err
	}
	obj := SdoObject{Node: addr[0], Index: addr[1], Sub: addr[2], Type: typ}
	return obj, obj.validate()
}

func (c *SdoCommand) GetState(d Driver, query string) (Reading, error) {
	fields, err := splitQuery(c.Name(), query, 4)
	if err != nil {
		return Reading{}, err
	}
	obj, err := c.parseObject(fields)
	if err != nil {
		return Reading{}, err
	}
	value, code, err := d.ReadSDO(obj)
	if err != nil {
		return Reading{}, wrapDriver(err, "read SDO")
	}
	state, err := c.DecodeStateCode(code)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: value, Units: c.Units(), State: state}, nil
}

func (c *SdoCommand) SetState(d Driver, query string) error {
	fields, err := splitQuery(c.Name(), query, 5)
	if err != nil {
		return err
	}
	obj, err := c.parseObject(fields[:4])
	if err != nil {
		return err
	}
	value, err := parseFloatArg(c.Name(), "value", fields[4])
	if err != nil {
		return err
	}
	if err := obj.Type.check(value); err != nil {
		return err
	}
	return wrapDriver(d.WriteSDO(obj, value), "write SDO")
}

func (c *SdoCommand) ConvertResult(result string) (Reading, error) {
	return convertResult(c.Name(), result)
}
