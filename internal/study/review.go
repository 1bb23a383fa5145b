package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/scheduler"
	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"go.uber.org/zap"
)

var (
	// ErrCardNotFound indicates a rating was submitted for an unknown card.
	ErrCardNotFound = errors.New("study: card not found")

	errMissingScheduler  = errors.New("study: scheduler is required")
	errMissingIDProvider = errors.New("study: id provider is required")
)

// Pusher mirrors local writes to the remote store. Implementations are
// asynchronous and best-effort; callers never wait on them.
type Pusher interface {
	PushCard(card vocab.Card)
	PushReviewLog(entry vocab.ReviewLog)
}

type noopPusher struct{}

func (noopPusher) PushCard(vocab.Card)           {}
func (noopPusher) PushReviewLog(vocab.ReviewLog) {}

// ReviewServiceConfig describes the dependencies of the review service.
type ReviewServiceConfig struct {
	Cards      *storage.CardStore
	Logs       *storage.ReviewLogStore
	Scheduler  *scheduler.Scheduler
	Clock      func() time.Time
	IDProvider vocab.IDProvider
	Pusher     Pusher
	Logger     *zap.Logger
}

// ReviewService records rating submissions: scheduler mutation, ledger
// append, remote mirror of both.
type ReviewService struct {
	cards      *storage.CardStore
	logs       *storage.ReviewLogStore
	sched      *scheduler.Scheduler
	clock      func() time.Time
	idProvider vocab.IDProvider
	pusher     Pusher
	logger     *zap.Logger
}

// NewReviewService constructs a ReviewService.
func NewReviewService(cfg ReviewServiceConfig) (*ReviewService, error) {
	if cfg.Cards == nil {
		return nil, errMissingCardStore
	}
	if cfg.Logs == nil {
		return nil, errMissingLogStore
	}
	if cfg.Scheduler == nil {
		return nil, errMissingScheduler
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	pusher := cfg.Pusher
	if pusher == nil {
		pusher = noopPusher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		cards:      cfg.Cards,
		logs:       cfg.Logs,
		sched:      cfg.Scheduler,
		clock:      clock,
		idProvider: cfg.IDProvider,
		pusher:     pusher,
		logger:     logger,
	}, nil
}

// SubmitReview applies the rating to the card, appends the ledger entry and
// mirrors both records remotely. The returned card carries the new state.
func (s *ReviewService) SubmitReview(ctx context.Context, cardID vocab.CardID, rating vocab.Rating) (vocab.Card, error) {
	card, err := s.cards.Get(ctx, cardID.String())
	if err != nil {
		return vocab.Card{}, fmt.Errorf("study: load card: %w", err)
	}
	if card == nil {
		return vocab.Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}

	now := s.clock()
	outcome, err := s.sched.ComputeNext(*card, rating, now)
	if err != nil {
		return vocab.Card{}, err
	}

	updated := *card
	updated.IntervalDays = outcome.IntervalDays
	updated.EaseFactor = outcome.EaseFactor
	updated.Repetitions = outcome.Repetitions
	updated.LearningStep = outcome.LearningStep
	updated.NextReviewAtSeconds = outcome.NextReviewAt.Unix()
	updated.UpdatedAtSeconds = now.Unix()

	if err := s.cards.Put(ctx, updated); err != nil {
		return vocab.Card{}, err
	}

	logID, err := s.idProvider.NewID()
	if err != nil {
		return vocab.Card{}, fmt.Errorf("study: review log id: %w", err)
	}
	entry := vocab.ReviewLog{
		LogID:             logID,
		CardID:            updated.CardID,
		Rating:            rating,
		ReviewedAtSeconds: now.Unix(),
	}
	if err := s.logs.Put(ctx, entry); err != nil {
		return vocab.Card{}, err
	}

	s.logger.Debug("review recorded",
		zap.String("card_id", updated.CardID),
		zap.String("rating", rating.String()),
		zap.Float64("interval_days", updated.IntervalDays))

	s.pusher.PushCard(updated)
	s.pusher.PushReviewLog(entry)
	return updated, nil
}

// Preview exposes, per rating, the interval that rating would assign to the
// card, without mutating state.
func (s *ReviewService) Preview(ctx context.Context, cardID vocab.CardID) ([]scheduler.RatingPreview, error) {
	card, err := s.cards.Get(ctx, cardID.String())
	if err != nil {
		return nil, fmt.Errorf("study: load card: %w", err)
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return s.sched.Preview(*card, s.clock())
}
