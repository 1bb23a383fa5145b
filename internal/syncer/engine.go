// Package syncer reconciles the local store with the learner's remote
// partition. Activation runs once per login and is the consistency backstop;
// every other remote write is an asynchronous best-effort mirror.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"go.uber.org/zap"
)

var (
	errMissingCardStore = errors.New("syncer: card store is required")
	errMissingDeckStore = errors.New("syncer: deck store is required")
	errMissingLogStore  = errors.New("syncer: review log store is required")
	errMissingRemote    = errors.New("syncer: remote store is required")
)

const defaultPushTimeout = 10 * time.Second

// RemoteStore is the per-record contract against the remote keyed store.
// Every method must be a no-op when the identity is empty.
type RemoteStore interface {
	FetchCards(ctx context.Context, identity vocab.SyncID) ([]vocab.Card, error)
	FetchDecks(ctx context.Context, identity vocab.SyncID) ([]vocab.Deck, error)
	FetchReviewLogs(ctx context.Context, identity vocab.SyncID) ([]vocab.ReviewLog, error)
	UpsertCard(ctx context.Context, identity vocab.SyncID, card vocab.Card) error
	UpsertDeck(ctx context.Context, identity vocab.SyncID, deck vocab.Deck) error
	UpsertReviewLog(ctx context.Context, identity vocab.SyncID, entry vocab.ReviewLog) error
	DeleteCard(ctx context.Context, identity vocab.SyncID, id string) error
	DeleteDeck(ctx context.Context, identity vocab.SyncID, id string) error
}

type disabledRemote struct{}

func (disabledRemote) FetchCards(context.Context, vocab.SyncID) ([]vocab.Card, error) { return nil, nil }
func (disabledRemote) FetchDecks(context.Context, vocab.SyncID) ([]vocab.Deck, error) { return nil, nil }
func (disabledRemote) FetchReviewLogs(context.Context, vocab.SyncID) ([]vocab.ReviewLog, error) {
	return nil, nil
}
func (disabledRemote) UpsertCard(context.Context, vocab.SyncID, vocab.Card) error      { return nil }
func (disabledRemote) UpsertDeck(context.Context, vocab.SyncID, vocab.Deck) error      { return nil }
func (disabledRemote) UpsertReviewLog(context.Context, vocab.SyncID, vocab.ReviewLog) error {
	return nil
}
func (disabledRemote) DeleteCard(context.Context, vocab.SyncID, string) error { return nil }
func (disabledRemote) DeleteDeck(context.Context, vocab.SyncID, string) error { return nil }

// NewDisabledRemote returns a RemoteStore for deployments without a remote
// partition. Every call is a no-op, so the engine operates purely locally.
func NewDisabledRemote() RemoteStore {
	return disabledRemote{}
}

// EngineConfig describes the dependencies of a sync engine instance.
type EngineConfig struct {
	Cards       *storage.CardStore
	Decks       *storage.DeckStore
	Logs        *storage.ReviewLogStore
	Remote      RemoteStore
	Logger      *zap.Logger
	PushTimeout time.Duration
}

// Engine owns one login session's replication state. The activation flag is
// instance state, never process-wide; a new login builds a new engine.
type Engine struct {
	cards       *storage.CardStore
	decks       *storage.DeckStore
	logs        *storage.ReviewLogStore
	remote      RemoteStore
	logger      *zap.Logger
	pushTimeout time.Duration

	mu        sync.Mutex
	identity  vocab.SyncID
	activated bool

	pushes sync.WaitGroup
}

// NewEngine constructs a sync engine for one session.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Cards == nil {
		return nil, errMissingCardStore
	}
	if cfg.Decks == nil {
		return nil, errMissingDeckStore
	}
	if cfg.Logs == nil {
		return nil, errMissingLogStore
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &Engine{
		cards:       cfg.Cards,
		decks:       cfg.Decks,
		logs:        cfg.Logs,
		remote:      cfg.Remote,
		logger:      logger,
		pushTimeout: timeout,
	}, nil
}

// ActivationReport summarises what an activation adopted and resolved.
type ActivationReport struct {
	DecksAdopted  int `json:"decks_adopted"`
	CardsAdopted  int `json:"cards_adopted"`
	LogsAdopted   int `json:"logs_adopted"`
	Conflicts     int `json:"conflicts"`
	LocalWins     int `json:"local_wins"`
	FetchFailures int `json:"fetch_failures"`
}

// Activate reconciles the local store with the identity's remote partition.
// Local data is discarded first: switching identities never partially merges
// two learners. A failed fetch is non-fatal; whatever was already adopted
// stays (partial success is success). Callers must await Activate before
// trusting due-queue or statistics results.
func (e *Engine) Activate(ctx context.Context, identity vocab.SyncID) (ActivationReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report ActivationReport

	if err := e.cards.Reset(ctx); err != nil {
		return report, fmt.Errorf("syncer: clear cards: %w", err)
	}
	if err := e.decks.Reset(ctx); err != nil {
		return report, fmt.Errorf("syncer: clear decks: %w", err)
	}
	if err := e.logs.Reset(ctx); err != nil {
		return report, fmt.Errorf("syncer: clear review logs: %w", err)
	}

	e.identity = identity
	e.activated = true

	decks, err := e.remote.FetchDecks(ctx, identity)
	if err != nil {
		report.FetchFailures++
		e.logger.Warn("remote deck fetch failed", zap.Error(err))
	}
	for _, deck := range decks {
		if err := e.decks.Put(ctx, deck); err != nil {
			return report, err
		}
		report.DecksAdopted++
	}

	cards, err := e.remote.FetchCards(ctx, identity)
	if err != nil {
		report.FetchFailures++
		e.logger.Warn("remote card fetch failed", zap.Error(err))
	}
	for _, remoteCard := range cards {
		local, err := e.cards.Get(ctx, remoteCard.CardID)
		if err != nil {
			return report, err
		}
		adopted := remoteCard
		if local != nil {
			// Defensive: both replicas present for one id.
			report.Conflicts++
			winner, localWins := resolveReplica(*local, remoteCard)
			adopted = winner
			if localWins {
				report.LocalWins++
				e.pushAsync("card", winner.CardID, func(pushCtx context.Context) error {
					return e.remote.UpsertCard(pushCtx, identity, winner)
				})
			}
		}
		if err := e.cards.Put(ctx, adopted); err != nil {
			return report, err
		}
		report.CardsAdopted++
	}

	logs, err := e.remote.FetchReviewLogs(ctx, identity)
	if err != nil {
		report.FetchFailures++
		e.logger.Warn("remote review log fetch failed", zap.Error(err))
	}
	for _, entry := range logs {
		if err := e.logs.Put(ctx, entry); err != nil {
			return report, err
		}
		report.LogsAdopted++
	}

	e.logger.Info("sync activation complete",
		zap.String("identity", identity.String()),
		zap.Int("decks", report.DecksAdopted),
		zap.Int("cards", report.CardsAdopted),
		zap.Int("review_logs", report.LogsAdopted),
		zap.Int("conflicts", report.Conflicts))
	return report, nil
}

// Activated reports whether this session has completed an activation.
func (e *Engine) Activated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activated
}

func (e *Engine) currentIdentity() (vocab.SyncID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activated || e.identity == "" {
		return "", false
	}
	return e.identity, true
}

// PushCard mirrors a local card write remotely, fire-and-forget.
func (e *Engine) PushCard(card vocab.Card) {
	identity, ok := e.currentIdentity()
	if !ok {
		return
	}
	e.pushAsync("card", card.CardID, func(ctx context.Context) error {
		return e.remote.UpsertCard(ctx, identity, card)
	})
}

// PushDeck mirrors a local deck write remotely, fire-and-forget.
func (e *Engine) PushDeck(deck vocab.Deck) {
	identity, ok := e.currentIdentity()
	if !ok {
		return
	}
	e.pushAsync("deck", deck.DeckID, func(ctx context.Context) error {
		return e.remote.UpsertDeck(ctx, identity, deck)
	})
}

// PushReviewLog mirrors a ledger append remotely, fire-and-forget.
func (e *Engine) PushReviewLog(entry vocab.ReviewLog) {
	identity, ok := e.currentIdentity()
	if !ok {
		return
	}
	e.pushAsync("review_log", entry.LogID, func(ctx context.Context) error {
		return e.remote.UpsertReviewLog(ctx, identity, entry)
	})
}

// DeleteCard mirrors a local card deletion remotely, fire-and-forget.
func (e *Engine) DeleteCard(cardID string) {
	identity, ok := e.currentIdentity()
	if !ok {
		return
	}
	e.pushAsync("card", cardID, func(ctx context.Context) error {
		return e.remote.DeleteCard(ctx, identity, cardID)
	})
}

// DeleteDeck mirrors a local deck deletion remotely, fire-and-forget.
func (e *Engine) DeleteDeck(deckID string) {
	identity, ok := e.currentIdentity()
	if !ok {
		return
	}
	e.pushAsync("deck", deckID, func(ctx context.Context) error {
		return e.remote.DeleteDeck(ctx, identity, deckID)
	})
}

// Flush blocks until every in-flight push has finished. Used by graceful
// shutdown and by tests; normal callers never wait on pushes.
func (e *Engine) Flush() {
	e.pushes.Wait()
}

// pushAsync runs one remote write in the background. Failures are swallowed
// after logging: the local write is already durable, so a lost push only
// delays replication until the next activation.
func (e *Engine) pushAsync(kind, id string, push func(context.Context) error) {
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.pushTimeout)
		defer cancel()
		if err := push(ctx); err != nil {
			e.logger.Warn("remote push failed",
				zap.String("kind", kind),
				zap.String("id", id),
				zap.Error(err))
		}
	}()
}
