package vocab

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidCardID indicates that a card identifier is empty or exceeds storage bounds.
	ErrInvalidCardID = errors.New("vocab: invalid card id")
	// ErrInvalidDeckID indicates that a deck identifier is empty or exceeds storage bounds.
	ErrInvalidDeckID = errors.New("vocab: invalid deck id")
	// ErrInvalidSyncID indicates that a sync identity is empty or exceeds storage bounds.
	ErrInvalidSyncID = errors.New("vocab: invalid sync identity")
	// ErrInvalidRating indicates an unknown rating value.
	ErrInvalidRating = errors.New("vocab: invalid rating")
)

// CardID represents a validated card identifier.
type CardID string

// NewCardID validates raw input and returns a CardID.
func NewCardID(rawInput string) (CardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCardID, maxIdentifierLength)
	}
	return CardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CardID) String() string {
	return string(id)
}

// DeckID represents a validated deck identifier.
type DeckID string

// NewDeckID validates raw input and returns a DeckID.
func NewDeckID(rawInput string) (DeckID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDeckID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeckID, maxIdentifierLength)
	}
	return DeckID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DeckID) String() string {
	return string(id)
}

// SyncID represents a validated sync identity scoping a learner's remote partition.
type SyncID string

// NewSyncID validates raw input and returns a SyncID.
func NewSyncID(rawInput string) (SyncID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSyncID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSyncID, maxIdentifierLength)
	}
	return SyncID(trimmed), nil
}

// String returns the underlying string identity.
func (id SyncID) String() string {
	return string(id)
}

// Rating enumerates the learner's self-assessed recall quality.
type Rating string

const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// ParseRating validates raw input against the rating vocabulary.
func ParseRating(rawInput string) (Rating, error) {
	switch Rating(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RatingAgain:
		return RatingAgain, nil
	case RatingHard:
		return RatingHard, nil
	case RatingGood:
		return RatingGood, nil
	case RatingEasy:
		return RatingEasy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRating, rawInput)
	}
}

// String returns the wire form of the rating.
func (r Rating) String() string {
	return string(r)
}

const (
	// MasteredIntervalDays marks the terminal interval assigned by an "easy" rating.
	MasteredIntervalDays = 10000.0
	// EaseFloor is the lower clamp applied to every ease factor mutation.
	EaseFloor = 1.3
)

// Card models one vocabulary item together with its scheduling state.
type Card struct {
	CardID              string  `gorm:"column:card_id;primaryKey;size:190;not null"`
	DeckID              string  `gorm:"column:deck_id;size:190;index:idx_cards_deck"`
	Term                string  `gorm:"column:term;size:320;not null"`
	Meaning             string  `gorm:"column:meaning;type:text;not null"`
	Explanation         string  `gorm:"column:explanation;type:text"`
	Phonetic            string  `gorm:"column:phonetic;size:320"`
	IntervalDays        float64 `gorm:"column:interval_days;not null;default:0"`
	EaseFactor          float64 `gorm:"column:ease_factor;not null;default:2.5"`
	Repetitions         int     `gorm:"column:repetitions;not null;default:0"`
	LearningStep        int     `gorm:"column:learning_step;not null;default:0"`
	NextReviewAtSeconds int64   `gorm:"column:next_review_at_s;not null;index:idx_cards_due"`
	CreatedAtSeconds    int64   `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds    int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Card) TableName() string {
	return "cards"
}

// Progress is the replica comparison metric used during sync reconciliation.
// Accumulated repetitions plus interval length is more robust to clock skew
// across long offline periods than timestamp comparison alone.
func (c Card) Progress() float64 {
	return float64(c.Repetitions) + c.IntervalDays
}

// Phase enumerates the scheduling phases encoded by interval magnitude.
type Phase int

const (
	// PhaseLearning covers sub-day intervals walked along the learning ladder.
	PhaseLearning Phase = iota
	// PhaseReview covers day-granularity intervals grown by the ease factor.
	PhaseReview
	// PhaseMastered is terminal; mastered cards never re-enter scheduling.
	PhaseMastered
)

// PhaseOf maps a card's interval to its scheduling phase. Every phase test in
// the repository goes through this accessor so the thresholds live in one place.
func PhaseOf(card Card) Phase {
	switch {
	case card.IntervalDays >= MasteredIntervalDays:
		return PhaseMastered
	case card.IntervalDays >= 1:
		return PhaseReview
	default:
		return PhaseLearning
	}
}

// Deck models a named grouping of cards.
type Deck struct {
	DeckID           string `gorm:"column:deck_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:320;not null"`
	Description      string `gorm:"column:description;type:text"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Deck) TableName() string {
	return "decks"
}

// ReviewLog records a single rating submission. Rows are append-only and are
// the sole source of truth for "studied today" counts and forecast history.
type ReviewLog struct {
	LogID             string `gorm:"column:log_id;primaryKey;size:190;not null"`
	CardID            string `gorm:"column:card_id;size:190;not null;index:idx_review_logs_card"`
	Rating            Rating `gorm:"column:rating;size:16;not null"`
	ReviewedAtSeconds int64  `gorm:"column:reviewed_at_s;not null;index:idx_review_logs_time"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewLog) TableName() string {
	return "review_logs"
}

// Setting stores one persisted configuration value, keyed by name.
type Setting struct {
	Name  string `gorm:"column:name;primaryKey;size:190;not null"`
	Value string `gorm:"column:value;size:320;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "settings"
}
