// Package remote adapts the remote keyed store behind an HTTP+JSON
// per-record contract. It is transport only: conflict resolution never
// happens here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"go.uber.org/zap"
)

const (
	kindCards      = "cards"
	kindDecks      = "decks"
	kindReviewLogs = "review-logs"
)

var (
	errMissingBaseURL = errors.New("remote: base url is required")
	errMissingSigner  = errors.New("remote: token signer is required")
)

// ClientConfig configures the remote store client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Signer     *TokenSigner
	Logger     *zap.Logger
}

// Client talks to the remote keyed store. Every method is a no-op when the
// identity is empty, so a learner without a sync identity operates purely
// locally.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *TokenSigner
	logger     *zap.Logger
}

// NewClient constructs a remote store client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Signer == nil {
		return nil, errMissingSigner
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		signer:     cfg.Signer,
		logger:     logger,
	}, nil
}

type cardPayload struct {
	CardID              string  `json:"card_id"`
	DeckID              string  `json:"deck_id,omitempty"`
	Term                string  `json:"term"`
	Meaning             string  `json:"meaning"`
	Explanation         string  `json:"explanation,omitempty"`
	Phonetic            string  `json:"phonetic,omitempty"`
	IntervalDays        float64 `json:"interval_days"`
	EaseFactor          float64 `json:"ease_factor"`
	Repetitions         int     `json:"repetitions"`
	LearningStep        int     `json:"learning_step"`
	NextReviewAtSeconds int64   `json:"next_review_at_s"`
	CreatedAtSeconds    int64   `json:"created_at_s"`
	UpdatedAtSeconds    int64   `json:"updated_at_s"`
}

type deckPayload struct {
	DeckID           string `json:"deck_id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type reviewLogPayload struct {
	LogID             string `json:"log_id"`
	CardID            string `json:"card_id"`
	Rating            string `json:"rating"`
	ReviewedAtSeconds int64  `json:"reviewed_at_s"`
}

func cardToPayload(card vocab.Card) cardPayload {
	return cardPayload{
		CardID:              card.CardID,
		DeckID:              card.DeckID,
		Term:                card.Term,
		Meaning:             card.Meaning,
		Explanation:         card.Explanation,
		Phonetic:            card.Phonetic,
		IntervalDays:        card.IntervalDays,
		EaseFactor:          card.EaseFactor,
		Repetitions:         card.Repetitions,
		LearningStep:        card.LearningStep,
		NextReviewAtSeconds: card.NextReviewAtSeconds,
		CreatedAtSeconds:    card.CreatedAtSeconds,
		UpdatedAtSeconds:    card.UpdatedAtSeconds,
	}
}

func payloadToCard(payload cardPayload) vocab.Card {
	return vocab.Card{
		CardID:              payload.CardID,
		DeckID:              payload.DeckID,
		Term:                payload.Term,
		Meaning:             payload.Meaning,
		Explanation:         payload.Explanation,
		Phonetic:            payload.Phonetic,
		IntervalDays:        payload.IntervalDays,
		EaseFactor:          payload.EaseFactor,
		Repetitions:         payload.Repetitions,
		LearningStep:        payload.LearningStep,
		NextReviewAtSeconds: payload.NextReviewAtSeconds,
		CreatedAtSeconds:    payload.CreatedAtSeconds,
		UpdatedAtSeconds:    payload.UpdatedAtSeconds,
	}
}

// FetchCards retrieves every card in the identity's remote partition.
func (c *Client) FetchCards(ctx context.Context, identity vocab.SyncID) ([]vocab.Card, error) {
	if identity == "" {
		return nil, nil
	}
	var payloads []cardPayload
	if err := c.fetch(ctx, identity, kindCards, &payloads); err != nil {
		return nil, err
	}
	cards := make([]vocab.Card, 0, len(payloads))
	for _, payload := range payloads {
		cards = append(cards, payloadToCard(payload))
	}
	return cards, nil
}

// FetchDecks retrieves every deck in the identity's remote partition.
func (c *Client) FetchDecks(ctx context.Context, identity vocab.SyncID) ([]vocab.Deck, error) {
	if identity == "" {
		return nil, nil
	}
	var payloads []deckPayload
	if err := c.fetch(ctx, identity, kindDecks, &payloads); err != nil {
		return nil, err
	}
	decks := make([]vocab.Deck, 0, len(payloads))
	for _, payload := range payloads {
		decks = append(decks, vocab.Deck{
			DeckID:           payload.DeckID,
			Name:             payload.Name,
			Description:      payload.Description,
			CreatedAtSeconds: payload.CreatedAtSeconds,
		})
	}
	return decks, nil
}

// FetchReviewLogs retrieves the identity's remote review ledger.
func (c *Client) FetchReviewLogs(ctx context.Context, identity vocab.SyncID) ([]vocab.ReviewLog, error) {
	if identity == "" {
		return nil, nil
	}
	var payloads []reviewLogPayload
	if err := c.fetch(ctx, identity, kindReviewLogs, &payloads); err != nil {
		return nil, err
	}
	logs := make([]vocab.ReviewLog, 0, len(payloads))
	for _, payload := range payloads {
		logs = append(logs, vocab.ReviewLog{
			LogID:             payload.LogID,
			CardID:            payload.CardID,
			Rating:            vocab.Rating(payload.Rating),
			ReviewedAtSeconds: payload.ReviewedAtSeconds,
		})
	}
	return logs, nil
}

// UpsertCard overwrite-upserts the card in the remote partition.
func (c *Client) UpsertCard(ctx context.Context, identity vocab.SyncID, card vocab.Card) error {
	if identity == "" {
		return nil
	}
	return c.upsert(ctx, identity, kindCards, card.CardID, cardToPayload(card))
}

// UpsertDeck overwrite-upserts the deck in the remote partition.
func (c *Client) UpsertDeck(ctx context.Context, identity vocab.SyncID, deck vocab.Deck) error {
	if identity == "" {
		return nil
	}
	payload := deckPayload{
		DeckID:           deck.DeckID,
		Name:             deck.Name,
		Description:      deck.Description,
		CreatedAtSeconds: deck.CreatedAtSeconds,
	}
	return c.upsert(ctx, identity, kindDecks, deck.DeckID, payload)
}

// UpsertReviewLog overwrite-upserts the ledger entry in the remote partition.
func (c *Client) UpsertReviewLog(ctx context.Context, identity vocab.SyncID, entry vocab.ReviewLog) error {
	if identity == "" {
		return nil
	}
	payload := reviewLogPayload{
		LogID:             entry.LogID,
		CardID:            entry.CardID,
		Rating:            entry.Rating.String(),
		ReviewedAtSeconds: entry.ReviewedAtSeconds,
	}
	return c.upsert(ctx, identity, kindReviewLogs, entry.LogID, payload)
}

// DeleteCard removes the card from the remote partition.
func (c *Client) DeleteCard(ctx context.Context, identity vocab.SyncID, id string) error {
	if identity == "" {
		return nil
	}
	return c.delete(ctx, identity, kindCards, id)
}

// DeleteDeck removes the deck from the remote partition.
func (c *Client) DeleteDeck(ctx context.Context, identity vocab.SyncID, id string) error {
	if identity == "" {
		return nil
	}
	return c.delete(ctx, identity, kindDecks, id)
}

func (c *Client) fetch(ctx context.Context, identity vocab.SyncID, kind string, out any) error {
	request, err := c.newRequest(ctx, identity, http.MethodGet, c.collectionURL(kind), nil)
	if err != nil {
		return err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("remote: fetch %s: %w", kind, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: fetch %s: unexpected status %d", kind, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", kind, err)
	}
	return nil
}

func (c *Client) upsert(ctx context.Context, identity vocab.SyncID, kind, id string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("remote: encode %s %s: %w", kind, id, err)
	}
	request, err := c.newRequest(ctx, identity, http.MethodPut, c.recordURL(kind, id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.expectSuccess(request, kind, id)
}

func (c *Client) delete(ctx context.Context, identity vocab.SyncID, kind, id string) error {
	request, err := c.newRequest(ctx, identity, http.MethodDelete, c.recordURL(kind, id), nil)
	if err != nil {
		return err
	}
	return c.expectSuccess(request, kind, id)
}

func (c *Client) expectSuccess(request *http.Request, kind, id string) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("remote: %s %s %s: %w", request.Method, kind, id, err)
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body) //nolint:errcheck
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("remote: %s %s %s: unexpected status %d", request.Method, kind, id, response.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, identity vocab.SyncID, method, requestURL string, body io.Reader) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	token, err := c.signer.Sign(identity)
	if err != nil {
		return nil, fmt.Errorf("remote: sign token: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	return request, nil
}

func (c *Client) collectionURL(kind string) string {
	return fmt.Sprintf("%s/v1/%s", c.baseURL, kind)
}

func (c *Client) recordURL(kind, id string) string {
	return fmt.Sprintf("%s/v1/%s/%s", c.baseURL, kind, url.PathEscape(id))
}
