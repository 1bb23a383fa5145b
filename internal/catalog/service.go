// Package catalog manages the card and deck catalog: saving lookup results,
// deck grouping and cascading deck deletion. Scheduling state is never
// mutated here.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"go.uber.org/zap"
)

var (
	// ErrDeckNotFound indicates an operation against an unknown deck.
	ErrDeckNotFound = errors.New("catalog: deck not found")
	// ErrEmptyTerm indicates a card save without a term.
	ErrEmptyTerm = errors.New("catalog: term is required")
	// ErrEmptyDeckName indicates a deck create without a name.
	ErrEmptyDeckName = errors.New("catalog: deck name is required")

	errMissingCardStore  = errors.New("catalog: card store is required")
	errMissingDeckStore  = errors.New("catalog: deck store is required")
	errMissingIDProvider = errors.New("catalog: id provider is required")
)

// Mirror replicates catalog mutations to the remote store. Implementations
// are asynchronous and best-effort.
type Mirror interface {
	PushCard(card vocab.Card)
	PushDeck(deck vocab.Deck)
	DeleteCard(cardID string)
	DeleteDeck(deckID string)
}

type noopMirror struct{}

func (noopMirror) PushCard(vocab.Card)  {}
func (noopMirror) PushDeck(vocab.Deck)  {}
func (noopMirror) DeleteCard(string)    {}
func (noopMirror) DeleteDeck(string)    {}

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Cards      *storage.CardStore
	Decks      *storage.DeckStore
	IDProvider vocab.IDProvider
	Clock      func() time.Time
	Mirror     Mirror
	Logger     *zap.Logger
}

// Service owns catalog mutations and reads.
type Service struct {
	cards      *storage.CardStore
	decks      *storage.DeckStore
	idProvider vocab.IDProvider
	clock      func() time.Time
	mirror     Mirror
	logger     *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Cards == nil {
		return nil, errMissingCardStore
	}
	if cfg.Decks == nil {
		return nil, errMissingDeckStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	mirror := cfg.Mirror
	if mirror == nil {
		mirror = noopMirror{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cards:      cfg.Cards,
		decks:      cfg.Decks,
		idProvider: cfg.IDProvider,
		clock:      clock,
		mirror:     mirror,
		logger:     logger,
	}, nil
}

// CardDraft carries the content of a lookup result about to be saved.
type CardDraft struct {
	Term        string
	Meaning     string
	Explanation string
	Phonetic    string
	DeckID      string
}

// SaveResult reports whether the draft was added. A duplicate term within the
// same deck is an explicit not-added result, never an error.
type SaveResult struct {
	Added bool
	Card  vocab.Card
}

// SaveCard persists a new card from a lookup result. Duplicates are detected
// by case-insensitive term within the same deck.
func (s *Service) SaveCard(ctx context.Context, draft CardDraft) (SaveResult, error) {
	term := strings.TrimSpace(draft.Term)
	if term == "" {
		return SaveResult{}, ErrEmptyTerm
	}

	existing, err := s.cards.GetAll(ctx)
	if err != nil {
		return SaveResult{}, fmt.Errorf("catalog: load cards: %w", err)
	}
	for _, card := range existing {
		if card.DeckID == draft.DeckID && strings.EqualFold(card.Term, term) {
			return SaveResult{Added: false, Card: card}, nil
		}
	}

	cardID, err := s.idProvider.NewID()
	if err != nil {
		return SaveResult{}, fmt.Errorf("catalog: card id: %w", err)
	}
	now := s.clock().Unix()
	card := vocab.Card{
		CardID:              cardID,
		DeckID:              draft.DeckID,
		Term:                term,
		Meaning:             strings.TrimSpace(draft.Meaning),
		Explanation:         strings.TrimSpace(draft.Explanation),
		Phonetic:            strings.TrimSpace(draft.Phonetic),
		IntervalDays:        0,
		EaseFactor:          2.5,
		Repetitions:         0,
		LearningStep:        0,
		NextReviewAtSeconds: now,
		CreatedAtSeconds:    now,
		UpdatedAtSeconds:    now,
	}
	if err := s.cards.Put(ctx, card); err != nil {
		return SaveResult{}, err
	}

	s.mirror.PushCard(card)
	return SaveResult{Added: true, Card: card}, nil
}

// ListCards returns the stored cards, optionally filtered to one deck.
func (s *Service) ListCards(ctx context.Context, deckID string) ([]vocab.Card, error) {
	cards, err := s.cards.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load cards: %w", err)
	}
	if deckID == "" {
		return cards, nil
	}
	filtered := make([]vocab.Card, 0, len(cards))
	for _, card := range cards {
		if card.DeckID == deckID {
			filtered = append(filtered, card)
		}
	}
	return filtered, nil
}

// CreateDeck persists a new named deck.
func (s *Service) CreateDeck(ctx context.Context, name, description string) (vocab.Deck, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return vocab.Deck{}, ErrEmptyDeckName
	}
	deckID, err := s.idProvider.NewID()
	if err != nil {
		return vocab.Deck{}, fmt.Errorf("catalog: deck id: %w", err)
	}
	deck := vocab.Deck{
		DeckID:           deckID,
		Name:             trimmedName,
		Description:      strings.TrimSpace(description),
		CreatedAtSeconds: s.clock().Unix(),
	}
	if err := s.decks.Put(ctx, deck); err != nil {
		return vocab.Deck{}, err
	}
	s.mirror.PushDeck(deck)
	return deck, nil
}

// ListDecks returns every stored deck.
func (s *Service) ListDecks(ctx context.Context) ([]vocab.Deck, error) {
	return s.decks.GetAll(ctx)
}

// DeleteDeck removes the deck and every card whose deck id matches. Cards
// without a deck are never touched; there is no reassignment to uncategorized.
func (s *Service) DeleteDeck(ctx context.Context, deckID vocab.DeckID) error {
	deck, err := s.decks.Get(ctx, deckID.String())
	if err != nil {
		return fmt.Errorf("catalog: load deck: %w", err)
	}
	if deck == nil {
		return fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}

	cards, err := s.cards.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("catalog: load cards: %w", err)
	}
	removed := 0
	for _, card := range cards {
		if card.DeckID != deckID.String() {
			continue
		}
		if err := s.cards.Delete(ctx, card.CardID); err != nil {
			return err
		}
		s.mirror.DeleteCard(card.CardID)
		removed++
	}

	if err := s.decks.Delete(ctx, deckID.String()); err != nil {
		return err
	}
	s.mirror.DeleteDeck(deckID.String())

	s.logger.Info("deck deleted",
		zap.String("deck_id", deckID.String()),
		zap.Int("cards_removed", removed))
	return nil
}
