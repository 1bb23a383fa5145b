package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/catalog"
	"github.com/MnemoResearchLab/mnemo/backend/internal/stats"
	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/study"
	"github.com/MnemoResearchLab/mnemo/backend/internal/syncer"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingCatalog       = errors.New("catalog service dependency required")
	errMissingSelector      = errors.New("due selector dependency required")
	errMissingReviewService = errors.New("review service dependency required")
	errMissingStatsEngine   = errors.New("stats engine dependency required")
	errMissingSyncEngine    = errors.New("sync engine dependency required")
	errMissingSettings      = errors.New("settings store dependency required")
)

// Dependencies wires the core services into the HTTP surface.
type Dependencies struct {
	Catalog  *catalog.Service
	Selector *study.Selector
	Reviews  *study.ReviewService
	Stats    *stats.Engine
	Sync     *syncer.Engine
	Settings *storage.SettingsStore
	Events   *EventDispatcher
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the retention core to the
// rendering client. The API is device-local; account provisioning and the
// remote store transport live elsewhere.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.Selector == nil {
		return nil, errMissingSelector
	}
	if deps.Reviews == nil {
		return nil, errMissingReviewService
	}
	if deps.Stats == nil {
		return nil, errMissingStatsEngine
	}
	if deps.Sync == nil {
		return nil, errMissingSyncEngine
	}
	if deps.Settings == nil {
		return nil, errMissingSettings
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		catalog:  deps.Catalog,
		selector: deps.Selector,
		reviews:  deps.Reviews,
		stats:    deps.Stats,
		sync:     deps.Sync,
		settings: deps.Settings,
		events:   events,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)

	v1 := router.Group("/v1")
	v1.POST("/decks", handler.handleCreateDeck)
	v1.GET("/decks", handler.handleListDecks)
	v1.DELETE("/decks/:id", handler.handleDeleteDeck)
	v1.POST("/cards", handler.handleSaveCard)
	v1.GET("/cards", handler.handleListCards)
	v1.GET("/cards/:id/preview", handler.handlePreview)
	v1.GET("/study/queue", handler.handleStudyQueue)
	v1.POST("/reviews", handler.handleSubmitReview)
	v1.GET("/stats/today", handler.handleStatsToday)
	v1.GET("/stats/counts", handler.handleStatsCounts)
	v1.GET("/stats/forecast", handler.handleStatsForecast)
	v1.GET("/stats/intervals", handler.handleStatsIntervals)
	v1.GET("/settings/daily-limit", handler.handleGetDailyLimit)
	v1.PUT("/settings/daily-limit", handler.handleSetDailyLimit)
	v1.POST("/sync/activate", handler.handleSyncActivate)
	v1.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	catalog  *catalog.Service
	selector *study.Selector
	reviews  *study.ReviewService
	stats    *stats.Engine
	sync     *syncer.Engine
	settings *storage.SettingsStore
	events   *EventDispatcher
	logger   *zap.Logger
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
	Phase               string  `json:"phase"`
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
		Phase:               phaseLabel(card),
	}
}

func phaseLabel(card vocab.Card) string {
	switch vocab.PhaseOf(card) {
	case vocab.PhaseMastered:
		return "mastered"
	case vocab.PhaseReview:
		return "review"
	default:
		return "learning"
	}
}

func cardsToPayloads(cards []vocab.Card) []cardPayload {
	payloads := make([]cardPayload, 0, len(cards))
	for _, card := range cards {
		payloads = append(payloads, cardToPayload(card))
	}
	return payloads
}

type deckPayload struct {
	DeckID           string `json:"deck_id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func deckToPayload(deck vocab.Deck) deckPayload {
	return deckPayload{
		DeckID:           deck.DeckID,
		Name:             deck.Name,
		Description:      deck.Description,
		CreatedAtSeconds: deck.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createDeckRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *httpHandler) handleCreateDeck(c *gin.Context) {
	var request createDeckRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deck, err := h.catalog.CreateDeck(c.Request.Context(), request.Name, request.Description)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyDeckName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("deck create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deck_create_failed"})
		return
	}
	c.JSON(http.StatusCreated, deckToPayload(deck))
}

func (h *httpHandler) handleListDecks(c *gin.Context) {
	decks, err := h.catalog.ListDecks(c.Request.Context())
	if err != nil {
		h.logger.Error("deck list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deck_list_failed"})
		return
	}
	payloads := make([]deckPayload, 0, len(decks))
	for _, deck := range decks {
		payloads = append(payloads, deckToPayload(deck))
	}
	c.JSON(http.StatusOK, gin.H{"decks": payloads})
}

func (h *httpHandler) handleDeleteDeck(c *gin.Context) {
	deckID, err := vocab.NewDeckID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deck_id"})
		return
	}
	if err := h.catalog.DeleteDeck(c.Request.Context(), deckID); err != nil {
		if errors.Is(err, catalog.ErrDeckNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "deck_not_found"})
			return
		}
		h.logger.Error("deck delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deck_delete_failed"})
		return
	}
	h.events.Publish(Event{Type: EventCardChange, IDs: []string{deckID.String()}, Timestamp: time.Now()})
	c.Status(http.StatusNoContent)
}

type saveCardRequest struct {
	Term        string `json:"term" binding:"required"`
	Meaning     string `json:"meaning" binding:"required"`
	Explanation string `json:"explanation"`
	Phonetic    string `json:"phonetic"`
	DeckID      string `json:"deck_id"`
}

func (h *httpHandler) handleSaveCard(c *gin.Context) {
	var request saveCardRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.catalog.SaveCard(c.Request.Context(), catalog.CardDraft{
		Term:        request.Term,
		Meaning:     request.Meaning,
		Explanation: request.Explanation,
		Phonetic:    request.Phonetic,
		DeckID:      request.DeckID,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyTerm) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("card save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card_save_failed"})
		return
	}
	if result.Added {
		h.events.Publish(Event{Type: EventCardChange, IDs: []string{result.Card.CardID}, Timestamp: time.Now()})
	}
	c.JSON(http.StatusOK, gin.H{"added": result.Added, "card": cardToPayload(result.Card)})
}

func (h *httpHandler) handleListCards(c *gin.Context) {
	cards, err := h.catalog.ListCards(c.Request.Context(), c.Query("deck_id"))
	if err != nil {
		h.logger.Error("card list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cardsToPayloads(cards)})
}

type previewPayload struct {
	Rating       string  `json:"rating"`
	IntervalDays float64 `json:"interval_days"`
	Label        string  `json:"label"`
}

func (h *httpHandler) handlePreview(c *gin.Context) {
	cardID, err := vocab.NewCardID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}
	previews, err := h.reviews.Preview(c.Request.Context(), cardID)
	if err != nil {
		if errors.Is(err, study.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card_not_found"})
			return
		}
		h.logger.Error("preview failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preview_failed"})
		return
	}
	payloads := make([]previewPayload, 0, len(previews))
	for _, preview := range previews {
		payloads = append(payloads, previewPayload{
			Rating:       preview.Rating.String(),
			IntervalDays: preview.IntervalDays,
			Label:        preview.Label,
		})
	}
	c.JSON(http.StatusOK, gin.H{"previews": payloads})
}

func (h *httpHandler) handleStudyQueue(c *gin.Context) {
	cards, err := h.selector.DueCards(c.Request.Context(), c.Query("deck_id"))
	if err != nil {
		h.logger.Error("study queue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "study_queue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cardsToPayloads(cards)})
}

type submitReviewRequest struct {
	CardID string `json:"card_id" binding:"required"`
	Rating string `json:"rating" binding:"required"`
}

func (h *httpHandler) handleSubmitReview(c *gin.Context) {
	var request submitReviewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	cardID, err := vocab.NewCardID(request.CardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card_id"})
		return
	}
	rating, err := vocab.ParseRating(request.Rating)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rating"})
		return
	}
	card, err := h.reviews.SubmitReview(c.Request.Context(), cardID, rating)
	if err != nil {
		if errors.Is(err, study.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card_not_found"})
			return
		}
		h.logger.Error("review submit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review_failed"})
		return
	}
	h.events.Publish(Event{Type: EventCardChange, IDs: []string{card.CardID}, Timestamp: time.Now()})
	c.JSON(http.StatusOK, gin.H{"card": cardToPayload(card)})
}

func (h *httpHandler) handleStatsToday(c *gin.Context) {
	summary, err := h.stats.Today(c.Request.Context())
	if err != nil {
		h.logger.Error("today stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleStatsCounts(c *gin.Context) {
	counts, err := h.stats.Counts(c.Request.Context())
	if err != nil {
		h.logger.Error("count stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *httpHandler) handleStatsForecast(c *gin.Context) {
	forecast, err := h.stats.Forecast(c.Request.Context())
	if err != nil {
		h.logger.Error("forecast stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": forecast})
}

func (h *httpHandler) handleStatsIntervals(c *gin.Context) {
	histogram, err := h.stats.IntervalHistogram(c.Request.Context())
	if err != nil {
		h.logger.Error("interval stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": histogram})
}

func (h *httpHandler) handleGetDailyLimit(c *gin.Context) {
	limit, err := h.settings.DailyReviewLimit(c.Request.Context())
	if err != nil {
		h.logger.Error("daily limit read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": limit})
}

type setDailyLimitRequest struct {
	Limit int `json:"limit" binding:"required"`
}

func (h *httpHandler) handleSetDailyLimit(c *gin.Context) {
	var request setDailyLimitRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.settings.SetDailyReviewLimit(c.Request.Context(), request.Limit); err != nil {
		if errors.Is(err, storage.ErrInvalidDailyLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		h.logger.Error("daily limit write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"limit": request.Limit})
}

type syncActivateRequest struct {
	SyncID string `json:"sync_id" binding:"required"`
}

func (h *httpHandler) handleSyncActivate(c *gin.Context) {
	var request syncActivateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	identity, err := vocab.NewSyncID(request.SyncID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sync_id"})
		return
	}
	report, err := h.sync.Activate(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("sync activation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed"})
		return
	}
	h.events.Publish(Event{Type: EventSyncComplete, Timestamp: time.Now()})
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cleanup := h.events.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
