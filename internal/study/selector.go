// Package study builds the bounded study queue and records rating
// submissions against it.
package study

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
)

var (
	errMissingCardStore     = errors.New("study: card store is required")
	errMissingLogStore      = errors.New("study: review log store is required")
	errMissingSettingsStore = errors.New("study: settings store is required")
)

// SelectorConfig describes the dependencies of the due selector.
type SelectorConfig struct {
	Cards    *storage.CardStore
	Logs     *storage.ReviewLogStore
	Settings *storage.SettingsStore
	Clock    func() time.Time
}

// Selector turns the universe of cards into the ordered "study now" queue,
// bounded by the remaining daily quota.
type Selector struct {
	cards    *storage.CardStore
	logs     *storage.ReviewLogStore
	settings *storage.SettingsStore
	clock    func() time.Time
}

// NewSelector constructs a Selector.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if cfg.Cards == nil {
		return nil, errMissingCardStore
	}
	if cfg.Logs == nil {
		return nil, errMissingLogStore
	}
	if cfg.Settings == nil {
		return nil, errMissingSettingsStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Selector{
		cards:    cfg.Cards,
		logs:     cfg.Logs,
		settings: cfg.Settings,
		clock:    clock,
	}, nil
}

// DueCards returns the ordered study queue. An empty deckID means every deck.
// Learning-phase cards precede review-phase cards regardless of due time so
// short-cycle relearning cards are not starved under the daily cap; within a
// phase the most overdue card comes first.
func (s *Selector) DueCards(ctx context.Context, deckID string) ([]vocab.Card, error) {
	quota, err := s.RemainingQuota(ctx)
	if err != nil {
		return nil, err
	}
	if quota == 0 {
		return []vocab.Card{}, nil
	}

	cards, err := s.cards.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("study: load cards: %w", err)
	}

	now := s.clock()
	due := make([]vocab.Card, 0, len(cards))
	for _, card := range cards {
		if vocab.PhaseOf(card) == vocab.PhaseMastered {
			continue
		}
		if deckID != "" && card.DeckID != deckID {
			continue
		}
		if card.NextReviewAtSeconds > now.Unix() {
			continue
		}
		due = append(due, card)
	}

	sort.Slice(due, func(i, j int) bool {
		learningI := vocab.PhaseOf(due[i]) == vocab.PhaseLearning
		learningJ := vocab.PhaseOf(due[j]) == vocab.PhaseLearning
		if learningI != learningJ {
			return learningI
		}
		if due[i].NextReviewAtSeconds != due[j].NextReviewAtSeconds {
			return due[i].NextReviewAtSeconds < due[j].NextReviewAtSeconds
		}
		return due[i].CardID < due[j].CardID
	})

	if len(due) > quota {
		due = due[:quota]
	}
	return due, nil
}

// RemainingQuota returns how many reviews are still allowed today. The daily
// limit applies globally even when a single deck's queue is requested.
func (s *Selector) RemainingQuota(ctx context.Context) (int, error) {
	limit, err := s.settings.DailyReviewLimit(ctx)
	if err != nil {
		return 0, fmt.Errorf("study: read daily limit: %w", err)
	}
	studied, err := s.logs.CountSince(ctx, localMidnight(s.clock()).Unix())
	if err != nil {
		return 0, fmt.Errorf("study: count studied today: %w", err)
	}
	quota := limit - studied
	if quota < 0 {
		quota = 0
	}
	return quota, nil
}

// localMidnight truncates the instant to the start of its local calendar day.
func localMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
