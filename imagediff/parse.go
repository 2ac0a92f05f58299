package imagediff

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// "all: 1234.56 (0.0188)": the parenthesised value is the normalised MAE.
	// Both numbers use %g and may carry an exponent: "all: 7.86e-05 (1.2e-09)".
	allChannelsRe = regexp.MustCompile(`all: [\d.eE+-]+ \(([^)]*)\)`)
	// A decimal, optionally with exponent, or an integer mantissa with an
	// exponent. A bare integer is not accepted.
	leadingFloat = regexp.MustCompile(`^\d+(?:\.\d+(?:[eE][-+]?\d+)?|[eE][-+]?\d+)`)
)

// ParseMAE extracts the normalised MAE from the verbose output of
// `compare -verbose -metric mae`. The last "all:" line wins. If no value
// beginning with a decimal or exponent-form number can be found, it returns
// MaxScore and false.
//
// This is the only place that knows ImageMagick's text format.
func ParseMAE(output string) (Score, bool) {
	flat := strings.ReplaceAll(output, "\n", " ")

	candidate := flat
	if m := allChannelsRe.FindAllStringSubmatch(flat, -1); len(m) > 0 {
		candidate = m[len(m)-1][1]
	}

	num := leadingFloat.FindString(strings.TrimSpace(candidate))
	if num == "" {
		return MaxScore, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return MaxScore, false
	}
	return Score(v), true
}
