package value

import "regexp"

// Dataspace groups compatible units: an enum plus a lookup table
// carrying long/short names and a recognizer regex for parsing unit
// names out of config strings.
type Dataspace int

const (
	InvalidDataspace Dataspace = iota
	Distance
	Angle
	Color
	Gain
	Position
	Orientation
	TimeSpace
	Speed
)

// Unit tags a Value with one member of a Dataspace.
type Unit int

const (
	InvalidUnit Unit = iota

	// Distance
	Meter
	Centimeter
	Millimeter
	Kilometer
	Inch
	Foot

	// Angle
	Radian
	Degree

	// Color (compound, conversions total and round-trip within tolerance)
	RGB
	HSV
	HSL
	CMYK
	ARGB

	// Gain
	Linear
	Decibel
	Midigain

	// Position (compound)
	Cartesian3D
	Spherical
	Polar

	// Orientation (compound)
	Quaternion
	AxisAngle
	EulerAngles

	// Time
	Second
	Millisecond
	Bark

	// Speed
	MeterPerSecond
	KilometerPerHour
)

type unitData struct {
	Dataspace Dataspace
	Long      string
	Short     string
	Regex     string
	// Neutral indicates this unit is the dataspace's neutral/reference unit.
	Neutral bool
}

var unitTable = map[Unit]unitData{
	Meter:      {Distance, "meter", "m", `^([mM]eters?)$`, true},
	Centimeter: {Distance, "centimeter", "cm", `^([cC]enti[mM]eters?|cm)$`, false},
	Millimeter: {Distance, "millimeter", "mm", `^([mM]illi[mM]eters?|mm)$`, false},
	Kilometer:  {Distance, "kilometer", "km", `^([kK]ilo[mM]eters?|km)$`, false},
	Inch:       {Distance, "inch", "in", `^([iI]nch(es)?|in)$`, false},
	Foot:       {Distance, "foot", "ft", `^([fF]eet|foot|ft)$`, false},

	Radian: {Angle, "radian", "rad", `^([rR]adians?|rad)$`, true},
	Degree: {Angle, "degree", "deg", `^([dD]egrees?|deg|°)$`, false},

	RGB:  {Color, "rgb", "rgb", `^(rgb|RGB)$`, true},
	HSV:  {Color, "hsv", "hsv", `^(hsv|HSV)$`, false},
	HSL:  {Color, "hsl", "hsl", `^(hsl|HSL)$`, false},
	CMYK: {Color, "cmyk", "cmyk", `^(cmyk|CMYK)$`, false},
	ARGB: {Color, "argb", "argb", `^(argb|ARGB)$`, false},

	Linear:   {Gain, "linear", "lin", `^([lL]inear|lin)$`, true},
	Decibel:  {Gain, "decibel", "dB", `^([dD]ecibels?|dB)$`, false},
	Midigain: {Gain, "midigain", "midi", `^([mM]idi[gG]ain|midi)$`, false},

	Cartesian3D: {Position, "cartesian", "xyz", `^([cC]artesian|xyz)$`, true},
	Spherical:   {Position, "spherical", "aed", `^([sS]pherical|aed)$`, false},
	Polar:       {Position, "polar", "polar", `^([pP]olar)$`, false},

	Quaternion:  {Orientation, "quaternion", "quat", `^([qQ]uaternion|quat)$`, true},
	AxisAngle:   {Orientation, "axisangle", "aa", `^([aA]xis[aA]ngle|aa)$`, false},
	EulerAngles: {Orientation, "euler", "euler", `^([eE]uler)$`, false},

	Second:      {TimeSpace, "second", "s", `^([sS]econds?|s)$`, true},
	Millisecond: {TimeSpace, "millisecond", "ms", `^([mM]illi[sS]econds?|ms)$`, false},
	Bark:        {TimeSpace, "bark", "bark", `^([bB]ark)$`, false},

	MeterPerSecond:    {Speed, "meterpersecond", "m/s", `^(m/s|meters?per[sS]econd)$`, true},
	KilometerPerHour:  {Speed, "kilometerperhour", "km/h", `^(km/h|kilometers?per[hH]our)$`, false},
}

// NeutralUnit returns a dataspace's designated neutral unit.
func NeutralUnit(d Dataspace) Unit {
	for u, data := range unitTable {
		if data.Dataspace == d && data.Neutral {
			return u
		}
	}
	return InvalidUnit
}

func dataspaceOf(u Unit) (Dataspace, bool) {
	data, ok := unitTable[u]
	if !ok {
		return InvalidDataspace, false
	}
	return data.Dataspace, true
}

// ParseUnit finds the Unit whose recognizer regex matches name by
// scanning the full unit table.
func ParseUnit(name string) Unit {
	for u, data := range unitTable {
		if regexp.MustCompile(data.Regex).MatchString(name) {
			return u
		}
	}
	return InvalidUnit
}

func (u Unit) String() string {
	if data, ok := unitTable[u]; ok {
		return data.Long
	}
	return "invalid"
}

func (u Unit) Short() string {
	if data, ok := unitTable[u]; ok {
		return data.Short
	}
	return "inval"
}
