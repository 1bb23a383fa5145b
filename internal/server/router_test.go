package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/catalog"
	"github.com/MnemoResearchLab/mnemo/backend/internal/scheduler"
	"github.com/MnemoResearchLab/mnemo/backend/internal/stats"
	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/study"
	"github.com/MnemoResearchLab/mnemo/backend/internal/syncer"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&vocab.Card{}, &vocab.Deck{}, &vocab.ReviewLog{}, &vocab.Setting{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	cardStore, err := storage.NewCardStore(db)
	if err != nil {
		t.Fatalf("failed to create card store: %v", err)
	}
	deckStore, err := storage.NewDeckStore(db)
	if err != nil {
		t.Fatalf("failed to create deck store: %v", err)
	}
	logStore, err := storage.NewReviewLogStore(db)
	if err != nil {
		t.Fatalf("failed to create review log store: %v", err)
	}
	settingsStore, err := storage.NewSettingsStore(db)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	syncEngine, err := syncer.NewEngine(syncer.EngineConfig{
		Cards:  cardStore,
		Decks:  deckStore,
		Logs:   logStore,
		Remote: syncer.NewDisabledRemote(),
	})
	if err != nil {
		t.Fatalf("failed to create sync engine: %v", err)
	}

	idProvider := vocab.NewUUIDProvider()
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Cards:      cardStore,
		Decks:      deckStore,
		IDProvider: idProvider,
		Mirror:     syncEngine,
	})
	if err != nil {
		t.Fatalf("failed to create catalog service: %v", err)
	}

	sched, err := scheduler.New(scheduler.DefaultParams())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	selector, err := study.NewSelector(study.SelectorConfig{
		Cards:    cardStore,
		Logs:     logStore,
		Settings: settingsStore,
	})
	if err != nil {
		t.Fatalf("failed to create selector: %v", err)
	}

	reviewService, err := study.NewReviewService(study.ReviewServiceConfig{
		Cards:      cardStore,
		Logs:       logStore,
		Scheduler:  sched,
		IDProvider: idProvider,
		Pusher:     syncEngine,
	})
	if err != nil {
		t.Fatalf("failed to create review service: %v", err)
	}

	statsEngine, err := stats.NewEngine(stats.EngineConfig{
		Cards:    cardStore,
		Logs:     logStore,
		Settings: settingsStore,
	})
	if err != nil {
		t.Fatalf("failed to create stats engine: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Catalog:  catalogService,
		Selector: selector,
		Reviews:  reviewService,
		Stats:    statsEngine,
		Sync:     syncEngine,
		Settings: settingsStore,
		Events:   NewEventDispatcher(),
	})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestSaveCardAndDuplicate(t *testing.T) {
	handler := newTestHandler(t)

	first := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{
		"term": "saudade", "meaning": "a deep longing",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var firstBody struct {
		Added bool `json:"added"`
		Card  struct {
			CardID string  `json:"card_id"`
			Phase  string  `json:"phase"`
			Ease   float64 `json:"ease_factor"`
		} `json:"card"`
	}
	decodeBody(t, first, &firstBody)
	if !firstBody.Added {
		t.Fatalf("expected new card added")
	}
	if firstBody.Card.Phase != "learning" || firstBody.Card.Ease != 2.5 {
		t.Fatalf("unexpected new card payload: %+v", firstBody.Card)
	}

	duplicate := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{
		"term": "SAUDADE", "meaning": "other",
	})
	if duplicate.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", duplicate.Code)
	}
	var dupBody struct {
		Added bool `json:"added"`
		Card  struct {
			CardID string `json:"card_id"`
		} `json:"card"`
	}
	decodeBody(t, duplicate, &dupBody)
	if dupBody.Added {
		t.Fatalf("duplicate term must not be added")
	}
	if dupBody.Card.CardID != firstBody.Card.CardID {
		t.Fatalf("duplicate must return the existing card")
	}
}

func TestSaveCardValidation(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{"meaning": "no term"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestStudyQueueAndReviewFlow(t *testing.T) {
	handler := newTestHandler(t)

	saved := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{
		"term": "ephemeral", "meaning": "short-lived",
	})
	var savedBody struct {
		Card struct {
			CardID string `json:"card_id"`
		} `json:"card"`
	}
	decodeBody(t, saved, &savedBody)

	queue := doJSON(t, handler, http.MethodGet, "/v1/study/queue", nil)
	if queue.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", queue.Code)
	}
	var queueBody struct {
		Cards []struct {
			CardID string `json:"card_id"`
		} `json:"cards"`
	}
	decodeBody(t, queue, &queueBody)
	if len(queueBody.Cards) != 1 || queueBody.Cards[0].CardID != savedBody.Card.CardID {
		t.Fatalf("new card must be immediately due, got %+v", queueBody.Cards)
	}

	review := doJSON(t, handler, http.MethodPost, "/v1/reviews", gin.H{
		"card_id": savedBody.Card.CardID, "rating": "good",
	})
	if review.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", review.Code, review.Body.String())
	}
	var reviewBody struct {
		Card struct {
			LearningStep int     `json:"learning_step"`
			IntervalDays float64 `json:"interval_days"`
		} `json:"card"`
	}
	decodeBody(t, review, &reviewBody)
	if reviewBody.Card.LearningStep != 1 {
		t.Fatalf("expected learning step advance, got %+v", reviewBody.Card)
	}

	today := doJSON(t, handler, http.MethodGet, "/v1/stats/today", nil)
	var todayBody struct {
		Studied int `json:"studied"`
	}
	decodeBody(t, today, &todayBody)
	if todayBody.Studied != 1 {
		t.Fatalf("expected one study recorded today, got %d", todayBody.Studied)
	}
}

func TestSubmitReviewRejectsUnknownRating(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodPost, "/v1/reviews", gin.H{
		"card_id": "card-1", "rating": "3",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for numeric rating, got %d", recorder.Code)
	}
}

func TestSubmitReviewUnknownCard(t *testing.T) {
	handler := newTestHandler(t)
	recorder := doJSON(t, handler, http.MethodPost, "/v1/reviews", gin.H{
		"card_id": "missing", "rating": "good",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	saved := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{
		"term": "liminal", "meaning": "transitional",
	})
	var savedBody struct {
		Card struct {
			CardID string `json:"card_id"`
		} `json:"card"`
	}
	decodeBody(t, saved, &savedBody)

	preview := doJSON(t, handler, http.MethodGet, "/v1/cards/"+savedBody.Card.CardID+"/preview", nil)
	if preview.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", preview.Code)
	}
	var previewBody struct {
		Previews []struct {
			Rating string `json:"rating"`
			Label  string `json:"label"`
		} `json:"previews"`
	}
	decodeBody(t, preview, &previewBody)
	if len(previewBody.Previews) != 4 {
		t.Fatalf("expected four previews, got %d", len(previewBody.Previews))
	}
	if previewBody.Previews[0].Rating != "again" {
		t.Fatalf("expected again first, got %+v", previewBody.Previews)
	}
}

func TestDeckLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	created := doJSON(t, handler, http.MethodPost, "/v1/decks", gin.H{"name": "Core 1k"})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", created.Code)
	}
	var deckBody struct {
		DeckID string `json:"deck_id"`
	}
	decodeBody(t, created, &deckBody)

	saved := doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{
		"term": "bridge", "meaning": "m", "deck_id": deckBody.DeckID,
	})
	if saved.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", saved.Code)
	}

	deleted := doJSON(t, handler, http.MethodDelete, "/v1/decks/"+deckBody.DeckID, nil)
	if deleted.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleted.Code)
	}

	cards := doJSON(t, handler, http.MethodGet, "/v1/cards", nil)
	var cardsBody struct {
		Cards []struct {
			CardID string `json:"card_id"`
		} `json:"cards"`
	}
	decodeBody(t, cards, &cardsBody)
	if len(cardsBody.Cards) != 0 {
		t.Fatalf("deck deletion must cascade to its cards, got %+v", cardsBody.Cards)
	}

	missing := doJSON(t, handler, http.MethodDelete, "/v1/decks/"+deckBody.DeckID, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeated delete, got %d", missing.Code)
	}
}

func TestDailyLimitEndpoints(t *testing.T) {
	handler := newTestHandler(t)

	read := doJSON(t, handler, http.MethodGet, "/v1/settings/daily-limit", nil)
	var readBody struct {
		Limit int `json:"limit"`
	}
	decodeBody(t, read, &readBody)
	if readBody.Limit != storage.DefaultDailyReviewLimit {
		t.Fatalf("expected default limit, got %d", readBody.Limit)
	}

	write := doJSON(t, handler, http.MethodPut, "/v1/settings/daily-limit", gin.H{"limit": 20})
	if write.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", write.Code)
	}

	invalid := doJSON(t, handler, http.MethodPut, "/v1/settings/daily-limit", gin.H{"limit": -3})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", invalid.Code)
	}

	read = doJSON(t, handler, http.MethodGet, "/v1/settings/daily-limit", nil)
	decodeBody(t, read, &readBody)
	if readBody.Limit != 20 {
		t.Fatalf("rejected write must keep prior value, got %d", readBody.Limit)
	}
}

func TestSyncActivateEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{"term": "stale", "meaning": "m"})

	activated := doJSON(t, handler, http.MethodPost, "/v1/sync/activate", gin.H{"sync_id": "learner-1"})
	if activated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", activated.Code, activated.Body.String())
	}
	var report struct {
		CardsAdopted int `json:"cards_adopted"`
	}
	decodeBody(t, activated, &report)
	if report.CardsAdopted != 0 {
		t.Fatalf("disabled remote must adopt nothing, got %+v", report)
	}

	cards := doJSON(t, handler, http.MethodGet, "/v1/cards", nil)
	var cardsBody struct {
		Cards []struct {
			CardID string `json:"card_id"`
		} `json:"cards"`
	}
	decodeBody(t, cards, &cardsBody)
	if len(cardsBody.Cards) != 0 {
		t.Fatalf("activation must wipe local state, got %+v", cardsBody.Cards)
	}

	invalid := doJSON(t, handler, http.MethodPost, "/v1/sync/activate", gin.H{"sync_id": "  "})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank identity, got %d", invalid.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	handler := newTestHandler(t)

	doJSON(t, handler, http.MethodPost, "/v1/cards", gin.H{"term": "one", "meaning": "m"})

	counts := doJSON(t, handler, http.MethodGet, "/v1/stats/counts", nil)
	var countsBody struct {
		New int `json:"new"`
	}
	decodeBody(t, counts, &countsBody)
	if countsBody.New != 1 {
		t.Fatalf("expected one new card, got %+v", countsBody)
	}

	forecast := doJSON(t, handler, http.MethodGet, "/v1/stats/forecast", nil)
	var forecastBody struct {
		Days []struct {
			DayOffset int `json:"day_offset"`
		} `json:"days"`
	}
	decodeBody(t, forecast, &forecastBody)
	if len(forecastBody.Days) != 365 {
		t.Fatalf("expected 365 forecast buckets, got %d", len(forecastBody.Days))
	}

	intervals := doJSON(t, handler, http.MethodGet, "/v1/stats/intervals", nil)
	var intervalsBody struct {
		Buckets []struct {
			Label string `json:"label"`
		} `json:"buckets"`
	}
	decodeBody(t, intervals, &intervalsBody)
	if len(intervalsBody.Buckets) != 7 {
		t.Fatalf("expected 7 histogram buckets, got %d", len(intervalsBody.Buckets))
	}
}

func TestEventDispatcherDeliversAndDrops(t *testing.T) {
	dispatcher := NewEventDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", dispatcher.SubscriberCount())
	}

	dispatcher.Publish(Event{Type: EventCardChange, IDs: []string{"card-1"}, Timestamp: time.Now()})
	select {
	case event := <-stream:
		if event.Type != EventCardChange || len(event.IDs) != 1 {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event delivery")
	}

	dispatcher.Publish(Event{Type: "", Timestamp: time.Now()})
	select {
	case event := <-stream:
		t.Fatalf("typeless event must not be delivered: %+v", event)
	default:
	}

	cleanup()
	if dispatcher.SubscriberCount() != 0 {
		t.Fatalf("cleanup must remove the subscriber")
	}
}
