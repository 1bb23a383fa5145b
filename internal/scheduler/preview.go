package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
)

// RatingPreview describes what one rating button would do to the card.
type RatingPreview struct {
	Rating       vocab.Rating
	IntervalDays float64
	Label        string
}

var previewOrder = []vocab.Rating{
	vocab.RatingAgain,
	vocab.RatingHard,
	vocab.RatingGood,
	vocab.RatingEasy,
}

// Preview returns, per rating, the human-readable interval that rating would
// assign, without mutating any state.
func (s *Scheduler) Preview(card vocab.Card, now time.Time) ([]RatingPreview, error) {
	previews := make([]RatingPreview, 0, len(previewOrder))
	for _, rating := range previewOrder {
		outcome, err := s.ComputeNext(card, rating, now)
		if err != nil {
			return nil, err
		}
		previews = append(previews, RatingPreview{
			Rating:       rating,
			IntervalDays: outcome.IntervalDays,
			Label:        FormatInterval(outcome.IntervalDays),
		})
	}
	return previews, nil
}

// FormatInterval renders an interval as minutes below one day, days below one
// year, and fractional years beyond.
func FormatInterval(intervalDays float64) string {
	if intervalDays < 1 {
		minutes := int(math.Round(intervalDays * 24 * 60))
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%dm", minutes)
	}
	if intervalDays < 365 {
		return fmt.Sprintf("%dd", int(math.Round(intervalDays)))
	}
	return fmt.Sprintf("%.1fy", intervalDays/365)
}
