package parser

import "strings"

// ColumnOffsets finds the starting column of every header label in line,
// left to right. It fails unless line starts with the first label and holds
// all of them.
func ColumnOffsets(line string, headers []string) ([]int, bool) {
	if len(headers) == 0 || !strings.HasPrefix(line, headers[0]) {
		return nil, false
	}
	offsets := make([]int, len(headers))
	pos := 0
	for i, h := range headers {
		idx := strings.Index(line[pos:], h)
		if idx < 0 {
			return nil, false
		}
		offsets[i] = pos + idx
		pos = offsets[i] + len(h)
	}
	return offsets, true
}

// Column cuts column i out of line using offsets from ColumnOffsets and
// trims it.
func Column(line string, offsets []int, i int) string {
	begin := offsets[i]
	if begin >= len(line) {
		return ""
	}
	end := len(line)
	if i+1 < len(offsets) && offsets[i+1] < end {
		end = offsets[i+1]
	}
	return strings.TrimSpace(line[begin:end])
}

// SplitLines splits text on LF or CRLF.
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// ThresholdStatus grades v against the device thresholds: ThresholdAlarm at
// or past an alarm limit, ThresholdWarning at or past a warning limit,
// ThresholdOK otherwise.
func ThresholdStatus(v, highAlarm, highWarn, lowWarn, lowAlarm float64) int {
	switch {
	case v <= lowAlarm || v >= highAlarm:
		return ThresholdAlarm
	case v <= lowWarn || v >= highWarn:
		return ThresholdWarning
	default:
		return ThresholdOK
	}
}

// MarkerStatus grades a device threshold marker: "++" and "--" are alarms,
// "+" and "-" warnings.
func MarkerStatus(marker string) int {
	switch marker {
	case "++", "--":
		return ThresholdAlarm
	case "+", "-":
		return ThresholdWarning
	default:
		return ThresholdOK
	}
}
