package palette

import "fmt"

// Marker is the point shape of a score series.
type Marker int

const (
	MarkerCircle Marker = iota
	MarkerSquare
	MarkerTriangle
	MarkerDiamond
	MarkerPin
	MarkerArrow
	MarkerRoundRect
)

var markerNames = [...]string{"circle", "square", "triangle", "diamond", "pin", "arrow", "round_rect"}

// echarts symbol names, indexed by Marker.
var echartsSymbols = [...]string{"circle", "rect", "triangle", "diamond", "pin", "arrow", "roundRect"}

// Markers lists every marker in assignment order.
var Markers = []Marker{MarkerCircle, MarkerSquare, MarkerTriangle, MarkerDiamond, MarkerPin, MarkerArrow, MarkerRoundRect}

// MarkerFor returns the marker of an aggregator file index.
func MarkerFor(aggregatorFileIndex int) Marker {
	if aggregatorFileIndex < 0 {
		aggregatorFileIndex = -aggregatorFileIndex
	}
	return Markers[aggregatorFileIndex%len(Markers)]
}

func (m Marker) String() string {
	if m < 0 || int(m) >= len(markerNames) {
		return "circle"
	}
	return markerNames[m]
}

// Symbol returns the echarts symbol name of m.
func (m Marker) Symbol() string {
	if m < 0 || int(m) >= len(echartsSymbols) {
		return "circle"
	}
	return echartsSymbols[m]
}

// MarshalText encodes m by name so figure JSON stays readable.
func (m Marker) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMarker returns the marker named s.
func ParseMarker(s string) (Marker, error) {
	for i, name := range markerNames {
		if name == s {
			return Marker(i), nil
		}
	}
	return MarkerCircle, fmt.Errorf("unknown marker %q", s)
}

// UnmarshalText decodes a marker name written by MarshalText.
func (m *Marker) UnmarshalText(b []byte) error {
	v, err := ParseMarker(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
