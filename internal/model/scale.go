package model

// Scale is an output scale chosen from a fixed list of percentage labels.
type Scale struct {
	Label      string
	Multiplier float64
}

// scales is the ordered scale vocabulary.
var scales = [...]Scale{
	{"10%", 0.1},
	{"25%", 0.25},
	{"50%", 0.5},
	{"75%", 0.75},
	{"100%", 1.0},
	{"125%", 1.25},
	{"150%", 1.5},
	{"200%", 2.0},
	{"500%", 5.0},
	{"1000%", 10.0},
}

// ParseScale returns the scale for an exact label match.
func ParseScale(label string) (Scale, bool) {
	for _, s := range scales {
		if s.Label == label {
			return s, true
		}
	}
	return Scale{}, false
}

// AllScales returns a copy of the scale vocabulary in ascending order.
func AllScales() []Scale {
	out := make([]Scale, len(scales))
	copy(out, scales[:])
	return out
}
