package value

import "math"

// WithUnit pairs a Value with an optional Unit tag.
// The zero WithUnit has InvalidUnit, meaning "no unit known".
type WithUnit struct {
	Value Value
	Unit  Unit
}

// Convert implements the dataspace conversion rule table:
//
//	src known, dst known, same dataspace  -> converted
//	src known, dst known, diff dataspace  -> src unchanged
//	src known, dst unknown                -> src with unit cleared
//	src unknown, dst known                -> src tagged with dst, values unchanged
//	src unknown, dst unknown              -> src unchanged
func Convert(src WithUnit, dst Unit) WithUnit {
	srcKnown := src.Unit != InvalidUnit
	dstKnown := dst != InvalidUnit

	switch {
	case !srcKnown && !dstKnown:
		return src
	case !srcKnown && dstKnown:
		return WithUnit{Value: src.Value, Unit: dst}
	case srcKnown && !dstKnown:
		return WithUnit{Value: src.Value, Unit: InvalidUnit}
	default:
		sd, _ := dataspaceOf(src.Unit)
		dd, _ := dataspaceOf(dst)
		if sd != dd {
			return src
		}
		if src.Unit == dst {
			return src
		}
		return WithUnit{Value: convertSameDataspace(src.Value, src.Unit, dst), Unit: dst}
	}
}

// convertSameDataspace performs source -> neutral -> target conversion
// within a single dataspace.
func convertSameDataspace(v Value, from, to Unit) Value {
	d, _ := dataspaceOf(from)
	if d == Color {
		return convertColor(v, from, to)
	}
	if d == Gain {
		return ConvertGain(v, from, to)
	}

	neutral := NeutralUnit(d)
	f, ok := v.AsFloat()
	if !ok {
		// Non-numeric compound units (position/orientation) that aren't
		// colors: pass through, conversion undefined beyond color in this
		// implementation.
		return v
	}

	toNeutral := toNeutralFactor(from)
	fromNeutral := fromNeutralFactor(to)
	_ = neutral
	return NewFloat(f * toNeutral * fromNeutral)
}

// toNeutralFactor and fromNeutralFactor give the linear scale factor between
// a unit and its dataspace's neutral unit, for the scalar dataspaces
// (distance, angle, gain, time, speed). Decibel is handled specially
// (logarithmic), the rest are simple multiplicative factors.
func toNeutralFactor(u Unit) float64 {
	switch u {
	case Meter, Radian, Linear, Second, MeterPerSecond, Cartesian3D, Quaternion:
		return 1
	case Centimeter:
		return 0.01
	case Millimeter:
		return 0.001
	case Kilometer:
		return 1000
	case Inch:
		return 0.0254
	case Foot:
		return 0.3048
	case Degree:
		return math.Pi / 180
	case Decibel:
		return 1 // handled by dBToLinear/linearToDB below
	case Midigain:
		return 1 / 127.0
	case Millisecond:
		return 0.001
	case KilometerPerHour:
		return 1 / 3.6
	default:
		return 1
	}
}

func fromNeutralFactor(u Unit) float64 {
	f := toNeutralFactor(u)
	if f == 0 {
		return 0
	}
	return 1 / f
}

// ConvertGain handles the Decibel<->Linear non-linear conversion, since
// toNeutralFactor alone only models multiplicative dataspaces.
func ConvertGain(v Value, from, to Unit) Value {
	f, ok := v.AsFloat()
	if !ok {
		return v
	}
	// to linear
	var lin float64
	switch from {
	case Decibel:
		lin = math.Pow(10, f/20)
	case Midigain:
		lin = f / 127.0
	default:
		lin = f
	}
	switch to {
	case Decibel:
		if lin <= 0 {
			return NewFloat(math.Inf(-1))
		}
		return NewFloat(20 * math.Log10(lin))
	case Midigain:
		return NewFloat(lin * 127.0)
	default:
		return NewFloat(lin)
	}
}

// convertColor implements total, round-tripping conversions among the
// compound color units (rgb, hsv, hsl, cmyk): every conversion is total
// and round-trips within numerical tolerance.
func convertColor(v Value, from, to Unit) Value {
	c := v.Components()
	if from == to {
		return v
	}

	var r, g, b float64
	switch from {
	case RGB:
		r, g, b = get3(c)
	case ARGB:
		if len(c) >= 4 {
			r, g, b = c[1], c[2], c[3]
		}
	case HSV:
		h, s, val := get3(c)
		r, g, b = hsvToRGB(h, s, val)
	case HSL:
		h, s, l := get3(c)
		r, g, b = hslToRGB(h, s, l)
	case CMYK:
		cC, m, y, k := get4(c)
		r, g, b = cmykToRGB(cC, m, y, k)
	default:
		r, g, b = get3(c)
	}

	switch to {
	case RGB:
		return NewVec3f(r, g, b)
	case ARGB:
		return NewVec4f(1, r, g, b)
	case HSV:
		h, s, val := rgbToHSV(r, g, b)
		return NewVec3f(h, s, val)
	case HSL:
		h, s, l := rgbToHSL(r, g, b)
		return NewVec3f(h, s, l)
	case CMYK:
		cC, m, y, k := rgbToCMYK(r, g, b)
		return NewVec4f(cC, m, y, k)
	default:
		return NewVec3f(r, g, b)
	}
}

func get3(c []float64) (a, b, cc float64) {
	if len(c) >= 3 {
		return c[0], c[1], c[2]
	}
	return
}

func get4(c []float64) (a, b, cc, d float64) {
	if len(c) >= 4 {
		return c[0], c[1], c[2], c[3]
	}
	return
}

func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	v = maxc
	d := maxc - minc
	if maxc == 0 {
		s = 0
	} else {
		s = d / maxc
	}
	if d == 0 {
		h = 0
	} else {
		switch maxc {
		case r:
			h = math.Mod((g-b)/d, 6)
		case g:
			h = (b-r)/d + 2
		case b:
			h = (r-g)/d + 4
		}
		h *= 60
		if h < 0 {
			h += 360
		}
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r1, g1, b1 float64
	switch {
	case h < 60:
		r1, g1, b1 = c, x, 0
	case h < 120:
		r1, g1, b1 = x, c, 0
	case h < 180:
		r1, g1, b1 = 0, c, x
	case h < 240:
		r1, g1, b1 = 0, x, c
	case h < 300:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	return r1 + m, g1 + m, b1 + m
}

func rgbToHSL(r, g, b float64) (h, s, l float64) {
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	l = (maxc + minc) / 2
	d := maxc - minc
	if d == 0 {
		h, s = 0, 0
		return
	}
	if l > 0.5 {
		s = d / (2 - maxc - minc)
	} else {
		s = d / (maxc + minc)
	}
	switch maxc {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	case b:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return
}

func hslToRGB(h, s, l float64) (r, g, b float64) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r1, g1, b1 float64
	switch {
	case h < 60:
		r1, g1, b1 = c, x, 0
	case h < 120:
		r1, g1, b1 = x, c, 0
	case h < 180:
		r1, g1, b1 = 0, c, x
	case h < 240:
		r1, g1, b1 = 0, x, c
	case h < 300:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	return r1 + m, g1 + m, b1 + m
}

func rgbToCMYK(r, g, b float64) (c, m, y, k float64) {
	k = 1 - math.Max(r, math.Max(g, b))
	if k >= 1 {
		return 0, 0, 0, 1
	}
	c = (1 - r - k) / (1 - k)
	m = (1 - g - k) / (1 - k)
	y = (1 - b - k) / (1 - k)
	return
}

func cmykToRGB(c, m, y, k float64) (r, g, b float64) {
	r = (1 - c) * (1 - k)
	g = (1 - m) * (1 - k)
	b = (1 - y) * (1 - k)
	return
}
