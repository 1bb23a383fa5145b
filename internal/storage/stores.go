package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("storage: database handle is required")

// CardStore is the keyed store owning the authoritative local copy of cards.
// It carries no domain logic; callers filter and order in memory.
type CardStore struct {
	db *gorm.DB
}

// NewCardStore wraps the database handle in a card store.
func NewCardStore(db *gorm.DB) (*CardStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &CardStore{db: db}, nil
}

// GetAll returns every stored card.
func (s *CardStore) GetAll(ctx context.Context) ([]vocab.Card, error) {
	var cards []vocab.Card
	if err := s.db.WithContext(ctx).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("storage: list cards: %w", err)
	}
	return cards, nil
}

// Get returns the card with the given id, or nil when absent.
func (s *CardStore) Get(ctx context.Context, id string) (*vocab.Card, error) {
	var card vocab.Card
	err := s.db.WithContext(ctx).Where("card_id = ?", id).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get card %s: %w", id, err)
	}
	return &card, nil
}

// Put upserts the card keyed by its id. The write is a single statement, so a
// concurrent reader never observes a partially-visible record.
func (s *CardStore) Put(ctx context.Context, card vocab.Card) error {
	if err := s.db.WithContext(ctx).Save(&card).Error; err != nil {
		return fmt.Errorf("storage: put card %s: %w", card.CardID, err)
	}
	return nil
}

// Delete removes the card with the given id. Deleting an absent id is a no-op.
func (s *CardStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("card_id = ?", id).Delete(&vocab.Card{}).Error; err != nil {
		return fmt.Errorf("storage: delete card %s: %w", id, err)
	}
	return nil
}

// Reset discards every stored card. Used only by sync activation.
func (s *CardStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&vocab.Card{}).Error; err != nil {
		return fmt.Errorf("storage: reset cards: %w", err)
	}
	return nil
}

// DeckStore is the keyed store for decks.
type DeckStore struct {
	db *gorm.DB
}

// NewDeckStore wraps the database handle in a deck store.
func NewDeckStore(db *gorm.DB) (*DeckStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &DeckStore{db: db}, nil
}

// GetAll returns every stored deck.
func (s *DeckStore) GetAll(ctx context.Context) ([]vocab.Deck, error) {
	var decks []vocab.Deck
	if err := s.db.WithContext(ctx).Find(&decks).Error; err != nil {
		return nil, fmt.Errorf("storage: list decks: %w", err)
	}
	return decks, nil
}

// Get returns the deck with the given id, or nil when absent.
func (s *DeckStore) Get(ctx context.Context, id string) (*vocab.Deck, error) {
	var deck vocab.Deck
	err := s.db.WithContext(ctx).Where("deck_id = ?", id).Take(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get deck %s: %w", id, err)
	}
	return &deck, nil
}

// Put upserts the deck keyed by its id.
func (s *DeckStore) Put(ctx context.Context, deck vocab.Deck) error {
	if err := s.db.WithContext(ctx).Save(&deck).Error; err != nil {
		return fmt.Errorf("storage: put deck %s: %w", deck.DeckID, err)
	}
	return nil
}

// Delete removes the deck with the given id.
func (s *DeckStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("deck_id = ?", id).Delete(&vocab.Deck{}).Error; err != nil {
		return fmt.Errorf("storage: delete deck %s: %w", id, err)
	}
	return nil
}

// Reset discards every stored deck. Used only by sync activation.
func (s *DeckStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&vocab.Deck{}).Error; err != nil {
		return fmt.Errorf("storage: reset decks: %w", err)
	}
	return nil
}

// ReviewLogStore is the keyed store for the append-only review ledger.
type ReviewLogStore struct {
	db *gorm.DB
}

// NewReviewLogStore wraps the database handle in a review log store.
func NewReviewLogStore(db *gorm.DB) (*ReviewLogStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &ReviewLogStore{db: db}, nil
}

// GetAll returns every ledger entry.
func (s *ReviewLogStore) GetAll(ctx context.Context) ([]vocab.ReviewLog, error) {
	var logs []vocab.ReviewLog
	if err := s.db.WithContext(ctx).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("storage: list review logs: %w", err)
	}
	return logs, nil
}

// Put upserts the ledger entry keyed by its id. Entries are id-unique and
// immutable, so the upsert only matters when re-adopting a mirrored entry.
func (s *ReviewLogStore) Put(ctx context.Context, entry vocab.ReviewLog) error {
	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("storage: put review log %s: %w", entry.LogID, err)
	}
	return nil
}

// Reset discards the entire ledger. Used only by sync activation.
func (s *ReviewLogStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&vocab.ReviewLog{}).Error; err != nil {
		return fmt.Errorf("storage: reset review logs: %w", err)
	}
	return nil
}

// CountSince returns the number of ledger entries recorded at or after the
// given unix second.
func (s *ReviewLogStore) CountSince(ctx context.Context, unixSeconds int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&vocab.ReviewLog{}).
		Where("reviewed_at_s >= ?", unixSeconds).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("storage: count review logs: %w", err)
	}
	return int(count), nil
}
