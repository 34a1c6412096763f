package domain

// Color is the color of a wheel position.
type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
	ColorGreen Color = "green"
)

// WheelPositions is the number of positions on the wheel (0..36).
const WheelPositions = 37

// ColorOf returns the color of a wheel index. 0 is green; odd indices in
// [1,35] are red; the remaining non-zero indices are black. This mapping is
// part of the external contract and must not change.
func ColorOf(index int) Color {
	switch {
	case index == 0:
		return ColorGreen
	case index%2 == 1:
		return ColorRed
	default:
		return ColorBlack
	}
}

// ValidIndex reports whether index is a wheel position.
func ValidIndex(index int) bool {
	return index >= 0 && index < WheelPositions
}
