// Package stats derives read-only aggregate views from the card store and
// the review ledger. Every view is recomputed on demand; nothing here
// mutates state or touches the sync layer.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
)

const (
	// matureThresholdDays splits young from mature review cards.
	matureThresholdDays = 21
	// forecastHorizonDays is the number of daily forecast buckets, day 0
	// included. Cards due beyond the horizon clamp into the final bucket so
	// the bucket sum always equals the non-mastered population.
	forecastHorizonDays = 365
)

var (
	errMissingCardStore     = errors.New("stats: card store is required")
	errMissingLogStore      = errors.New("stats: review log store is required")
	errMissingSettingsStore = errors.New("stats: settings store is required")
)

// EngineConfig describes the dependencies of the statistics engine.
type EngineConfig struct {
	Cards    *storage.CardStore
	Logs     *storage.ReviewLogStore
	Settings *storage.SettingsStore
	Clock    func() time.Time
}

// Engine computes aggregate views for display.
type Engine struct {
	cards    *storage.CardStore
	logs     *storage.ReviewLogStore
	settings *storage.SettingsStore
	clock    func() time.Time
}

// NewEngine constructs the statistics engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
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
	return &Engine{
		cards:    cfg.Cards,
		logs:     cfg.Logs,
		settings: cfg.Settings,
		clock:    clock,
	}, nil
}

// TodaySummary reports today's progress against the configured daily limit.
type TodaySummary struct {
	Studied    int `json:"studied"`
	Limit      int `json:"limit"`
	AgainCount int `json:"again_count"`
	Recalled   int `json:"recalled_count"`
}

// Today summarises the ledger entries recorded since local midnight.
func (e *Engine) Today(ctx context.Context) (TodaySummary, error) {
	limit, err := e.settings.DailyReviewLimit(ctx)
	if err != nil {
		return TodaySummary{}, fmt.Errorf("stats: read daily limit: %w", err)
	}
	entries, err := e.logs.GetAll(ctx)
	if err != nil {
		return TodaySummary{}, fmt.Errorf("stats: load review logs: %w", err)
	}

	midnight := localMidnight(e.clock()).Unix()
	summary := TodaySummary{Limit: limit}
	for _, entry := range entries {
		if entry.ReviewedAtSeconds < midnight {
			continue
		}
		summary.Studied++
		if entry.Rating == vocab.RatingAgain {
			summary.AgainCount++
		} else {
			summary.Recalled++
		}
	}
	return summary, nil
}

// CardCounts buckets the card population by maturity. The categories are
// disjoint; mastered cards count as mature.
type CardCounts struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Young    int `json:"young"`
	Mature   int `json:"mature"`
}

// Counts classifies every stored card.
func (e *Engine) Counts(ctx context.Context) (CardCounts, error) {
	cards, err := e.cards.GetAll(ctx)
	if err != nil {
		return CardCounts{}, fmt.Errorf("stats: load cards: %w", err)
	}
	var counts CardCounts
	for _, card := range cards {
		switch {
		case card.Repetitions == 0 && card.IntervalDays == 0:
			counts.New++
		case card.IntervalDays < 1:
			counts.Learning++
		case card.IntervalDays < matureThresholdDays:
			counts.Young++
		default:
			counts.Mature++
		}
	}
	return counts, nil
}

// ForecastDay counts the non-mastered cards due on one future day, split at
// the maturity threshold. Day 0 carries today's due cards plus the overdue
// backlog.
type ForecastDay struct {
	DayOffset int `json:"day_offset"`
	Young     int `json:"young"`
	Mature    int `json:"mature"`
}

// Forecast returns one bucket per day for the next year.
func (e *Engine) Forecast(ctx context.Context) ([]ForecastDay, error) {
	cards, err := e.cards.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: load cards: %w", err)
	}

	days := make([]ForecastDay, forecastHorizonDays)
	for i := range days {
		days[i].DayOffset = i
	}

	midnight := localMidnight(e.clock())
	for _, card := range cards {
		if vocab.PhaseOf(card) == vocab.PhaseMastered {
			continue
		}
		if card.NextReviewAtSeconds == 0 {
			continue
		}
		due := time.Unix(card.NextReviewAtSeconds, 0).In(midnight.Location())
		offset := int(due.Sub(midnight).Hours() / 24)
		if offset < 0 {
			offset = 0
		}
		if offset >= forecastHorizonDays {
			offset = forecastHorizonDays - 1
		}
		if card.IntervalDays >= matureThresholdDays {
			days[offset].Mature++
		} else {
			days[offset].Young++
		}
	}
	return days, nil
}

// IntervalBucket counts the non-mastered cards whose interval falls in one
// fixed range.
type IntervalBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

var histogramEdges = []struct {
	label   string
	maxDays float64
}{
	{"0-1", 1},
	{"2-7", 7},
	{"8-30", 30},
	{"31-90", 90},
	{"91-180", 180},
	{"181-365", 365},
}

// IntervalHistogram buckets non-mastered cards by interval length.
func (e *Engine) IntervalHistogram(ctx context.Context) ([]IntervalBucket, error) {
	cards, err := e.cards.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: load cards: %w", err)
	}

	buckets := make([]IntervalBucket, 0, len(histogramEdges)+1)
	for _, edge := range histogramEdges {
		buckets = append(buckets, IntervalBucket{Label: edge.label})
	}
	buckets = append(buckets, IntervalBucket{Label: ">365"})

	for _, card := range cards {
		if vocab.PhaseOf(card) == vocab.PhaseMastered {
			continue
		}
		placed := false
		for i, edge := range histogramEdges {
			if card.IntervalDays <= edge.maxDays {
				buckets[i].Count++
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(buckets)-1].Count++
		}
	}
	return buckets, nil
}

func localMidnight(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
