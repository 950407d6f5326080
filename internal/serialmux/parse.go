package serialmux

import "strings"

// LineKind is a coarse classification of a line read from the IMU.
type LineKind int

const (
	LineUnknown LineKind = iota
	// LineSample is a CSV or JSON measurement.
	LineSample
	// LineStatus is a '#'-prefixed status or acknowledgement line.
	LineStatus
)

// ClassifyLine decides how a raw line should be handled without fully
// parsing it.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineUnknown
	case strings.HasPrefix(line, "#"):
		return LineStatus
	case strings.HasPrefix(line, "{") && strings.Contains(line, `"t_us"`):
		return LineSample
	case line[0] >= '0' && line[0] <= '9' && strings.Count(line, ",") == 6:
		return LineSample
	default:
		return LineUnknown
	}
}
