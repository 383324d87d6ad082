// Package crisis screens user messages for self-harm risk before any
// model-generated text is produced.
package crisis

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/mindease/backend/pkg/logger"
)

type Level string

const (
	LevelNone Level = "none"
	LevelLow  Level = "low"
	LevelHigh Level = "high"
)

type Detector struct {
	highSignals []string
	lowSignals  []string
}

func NewDetector(highSignals, lowSignals []string) *Detector {
	normalize := func(signals []string) []string {
		out := make([]string, 0, len(signals))
		for _, s := range signals {
			if n := normalizeText(s); n != "" {
				out = append(out, n)
			}
		}
		return out
	}
	return &Detector{
		highSignals: normalize(highSignals),
		lowSignals:  normalize(lowSignals),
	}
}

// Classification is the detector verdict for one message. Matched
// lists every normalized signal phrase found at the winning level.
type Classification struct {
	Level   Level
	Matched []string
}

// Classify matches normalized signal phrases against the normalized
// message. High signals dominate low ones.
func (d *Detector) Classify(text string) Classification {
	normalized := normalizeText(text)
	if normalized == "" {
		return Classification{Level: LevelNone}
	}

	// Pad so signal phrases only match on word boundaries.
	padded := " " + normalized + " "

	if matched := matchSignals(padded, d.highSignals); len(matched) > 0 {
		return Classification{Level: LevelHigh, Matched: matched}
	}
	if matched := matchSignals(padded, d.lowSignals); len(matched) > 0 {
		return Classification{Level: LevelLow, Matched: matched}
	}

	return Classification{Level: LevelNone}
}

func matchSignals(padded string, signals []string) []string {
	var matched []string
	for _, signal := range signals {
		if strings.Contains(padded, " "+signal+" ") {
			matched = append(matched, signal)
		}
	}
	return matched
}

// ClassifySafe never lets a detector failure downgrade a message: any
// panic during classification is reported as high risk.
func (d *Detector) ClassifySafe(text string) (cls Classification) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Crisis detector panicked, failing safe", zap.Any("panic", r))
			cls = Classification{Level: LevelHigh}
		}
	}()
	return d.Classify(text)
}

// normalizeText lowercases and maps every non-alphanumeric rune to a
// space, so punctuation and casing never hide a signal phrase.
func normalizeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
