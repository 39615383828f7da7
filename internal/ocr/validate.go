package ocr

import "strings"

const (
	minLineConfidence  = 0.60
	minImageConfidence = 0.65
)

// Line is one recognized text line with its confidence in 0..1.
type Line struct {
	Text       string
	Confidence float64
}

// ValidateLines filters recognized lines by confidence: low-confidence lines
// are dropped, and if the surviving lines' mean confidence is still below the
// image threshold the whole image is rejected.
func ValidateLines(lines []Line) []Line {
	if len(lines) == 0 {
		return nil
	}

	valid := lines[:0:0]
	for _, l := range lines {
		if l.Confidence >= minLineConfidence && strings.TrimSpace(l.Text) != "" {
			valid = append(valid, l)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	var sum float64
	for _, l := range valid {
		sum += l.Confidence
	}
	if sum/float64(len(valid)) < minImageConfidence {
		return nil
	}
	return valid
}

// JoinLines renders validated lines as the multiline text handed to the
// extraction provider.
func JoinLines(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}
