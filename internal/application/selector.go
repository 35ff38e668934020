package app

import (
	"strings"
	"unicode"

	"plate-ingest/internal/domain/entity"
)

// Normalize приводит прочтение к каноническому виду: без пробельных символов, в верхнем регистре.
func Normalize(text string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text))
}

// SelectCandidate выбирает гипотезу с максимальной уверенностью. При равенстве
// побеждает первая по порядку. Возвращает false, если гипотез нет или после
// нормализации текст пуст.
func SelectCandidate(region entity.Region, hypotheses []entity.TextHypothesis) (entity.PlateCandidate, bool) {
	best := -1
	bestConf := 0.0
	for i, h := range hypotheses {
		conf := clampConfidence(h.Confidence)
		if best == -1 || conf > bestConf {
			best, bestConf = i, conf
		}
	}
	if best == -1 {
		return entity.PlateCandidate{}, false
	}

	canonical := Normalize(hypotheses[best].Text)
	if canonical == "" {
		return entity.PlateCandidate{}, false
	}

	return entity.PlateCandidate{
		CanonicalText: canonical,
		RawText:       hypotheses[best].Text,
		Confidence:    bestConf,
		Region:        region,
	}, true
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
