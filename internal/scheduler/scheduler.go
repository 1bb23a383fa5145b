// Package scheduler implements the per-card spaced repetition transition
// function. ComputeNext is pure: given the card's current scheduling fields
// and a rating it returns the next state, reading the clock only to anchor
// the next review timestamp.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
)

var (
	errEmptyLadder = errors.New("scheduler: learning ladder requires at least one step")
	// ErrUnknownRating indicates a rating outside the again/hard/good/easy vocabulary.
	ErrUnknownRating = errors.New("scheduler: unknown rating")
)

// Params parameterises the transition function. The ladder length is
// configurable; graduation always happens on "good" from the last step and
// "again" always restarts at step zero.
type Params struct {
	// LearningSteps is the ordered ladder of sub-day delays a new or lapsed
	// card passes through before graduating to day-granularity review.
	LearningSteps []time.Duration
	// HardLearningStep is the fixed repeat delay for "hard" while learning.
	HardLearningStep time.Duration
	// GraduateIntervalDays is the first review-phase interval after the ladder.
	GraduateIntervalDays float64
	// MasteredIntervalDays is the terminal interval assigned by "easy".
	MasteredIntervalDays float64
	// EaseFloor is the lower clamp for every ease factor mutation.
	EaseFloor float64
	// LapseEasePenalty is subtracted from the ease factor on a review lapse.
	LapseEasePenalty float64
	// HardEasePenalty is subtracted from the ease factor on a hard review.
	HardEasePenalty float64
	// HardIntervalMultiplier grows the interval on a hard review.
	HardIntervalMultiplier float64
}

// DefaultParams returns the stock two-step ladder configuration.
func DefaultParams() Params {
	return Params{
		LearningSteps:          []time.Duration{1 * time.Minute, 10 * time.Minute},
		HardLearningStep:       6 * time.Minute,
		GraduateIntervalDays:   1,
		MasteredIntervalDays:   vocab.MasteredIntervalDays,
		EaseFloor:              vocab.EaseFloor,
		LapseEasePenalty:       0.2,
		HardEasePenalty:        0.15,
		HardIntervalMultiplier: 1.2,
	}
}

// Outcome holds the scheduling fields produced by a transition.
type Outcome struct {
	IntervalDays float64
	EaseFactor   float64
	Repetitions  int
	LearningStep int
	NextReviewAt time.Time
}

// Scheduler applies the transition policy for a fixed parameter set.
type Scheduler struct {
	params Params
}

// New constructs a Scheduler, validating the ladder.
func New(params Params) (*Scheduler, error) {
	if len(params.LearningSteps) == 0 {
		return nil, errEmptyLadder
	}
	if params.GraduateIntervalDays <= 0 {
		params.GraduateIntervalDays = 1
	}
	if params.MasteredIntervalDays <= 0 {
		params.MasteredIntervalDays = vocab.MasteredIntervalDays
	}
	if params.EaseFloor <= 0 {
		params.EaseFloor = vocab.EaseFloor
	}
	return &Scheduler{params: params}, nil
}

// ComputeNext returns the scheduling state resulting from rating the card now.
// The card itself is not mutated.
func (s *Scheduler) ComputeNext(card vocab.Card, rating vocab.Rating, now time.Time) (Outcome, error) {
	outcome := Outcome{
		IntervalDays: card.IntervalDays,
		EaseFactor:   s.clampEase(card.EaseFactor),
		Repetitions:  card.Repetitions,
		LearningStep: card.LearningStep,
	}

	learning := vocab.PhaseOf(card) == vocab.PhaseLearning

	switch rating {
	case vocab.RatingEasy:
		// Explicit "never ask again" escape, not a graded step.
		outcome.IntervalDays = s.params.MasteredIntervalDays
		outcome.LearningStep = 0
		outcome.Repetitions++
	case vocab.RatingAgain:
		if learning {
			outcome.LearningStep = 0
			outcome.IntervalDays = s.stepDays(0)
		} else {
			// Lapse: partial penalty, dropping to the ladder's second step
			// rather than a full restart.
			outcome.LearningStep = s.lapseStep()
			outcome.IntervalDays = s.stepDays(outcome.LearningStep)
			outcome.EaseFactor = s.clampEase(outcome.EaseFactor - s.params.LapseEasePenalty)
			outcome.Repetitions = 0
		}
	case vocab.RatingHard:
		if learning {
			outcome.IntervalDays = s.params.HardLearningStep.Hours() / 24
		} else {
			outcome.IntervalDays = card.IntervalDays * s.params.HardIntervalMultiplier
			outcome.EaseFactor = s.clampEase(outcome.EaseFactor - s.params.HardEasePenalty)
		}
		outcome.Repetitions++
	case vocab.RatingGood:
		if learning {
			if card.LearningStep >= len(s.params.LearningSteps)-1 {
				outcome.IntervalDays = s.params.GraduateIntervalDays
				outcome.LearningStep = 0
			} else {
				outcome.LearningStep = card.LearningStep + 1
				outcome.IntervalDays = s.stepDays(outcome.LearningStep)
			}
		} else {
			outcome.IntervalDays = card.IntervalDays * outcome.EaseFactor
		}
		outcome.Repetitions++
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownRating, rating)
	}

	outcome.NextReviewAt = now.Add(daysToDuration(outcome.IntervalDays))
	return outcome, nil
}

// lapseStep returns the ladder index a review lapse drops to. A one-step
// ladder falls back to step zero.
func (s *Scheduler) lapseStep() int {
	if len(s.params.LearningSteps) > 1 {
		return 1
	}
	return 0
}

func (s *Scheduler) stepDays(step int) float64 {
	if step < 0 {
		step = 0
	}
	if step >= len(s.params.LearningSteps) {
		step = len(s.params.LearningSteps) - 1
	}
	return s.params.LearningSteps[step].Hours() / 24
}

func (s *Scheduler) clampEase(ease float64) float64 {
	if ease < s.params.EaseFloor {
		return s.params.EaseFloor
	}
	return ease
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
