package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestSigner(t *testing.T) *TokenSigner {
	t.Helper()
	signer, err := NewTokenSigner(TokenSignerConfig{
		SigningSecret: []byte(testSecret),
		Clock:         func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL: baseURL,
		Signer:  newTestSigner(t),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURLAndSigner(t *testing.T) {
	if _, err := NewClient(ClientConfig{Signer: newTestSigner(t)}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://remote.example"}); err == nil {
		t.Fatalf("expected error for missing signer")
	}
}

func TestTokenSignerEmbedsIdentityAsSubject(t *testing.T) {
	signer := newTestSigner(t)
	signed, err := signer.Sign(vocab.SyncID("learner-1"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Valid {
		t.Fatalf("expected valid token")
	}
	if claims.Subject != "learner-1" {
		t.Fatalf("expected identity as subject, got %q", claims.Subject)
	}
	if claims.Issuer != "mnemo-sync" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	expiry := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if expiry != 2*time.Minute {
		t.Fatalf("expected 2 minute ttl, got %v", expiry)
	}
}

func TestFetchCardsSendsBearerTokenAndDecodes(t *testing.T) {
	var capturedPath, capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]cardPayload{{ //nolint:errcheck
			CardID:       "card-1",
			Term:         "saudade",
			Meaning:      "longing",
			IntervalDays: 4,
			EaseFactor:   2.5,
			Repetitions:  2,
		}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	cards, err := client.FetchCards(context.Background(), vocab.SyncID("learner-1"))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if capturedPath != "/v1/cards" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if !strings.HasPrefix(capturedAuth, "Bearer ") {
		t.Fatalf("expected bearer token, got %q", capturedAuth)
	}
	if len(cards) != 1 || cards[0].CardID != "card-1" || cards[0].IntervalDays != 4 {
		t.Fatalf("unexpected cards: %+v", cards)
	}
}

func TestUpsertCardPutsRecordByID(t *testing.T) {
	var capturedMethod, capturedPath string
	var capturedBody cardPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &capturedBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	card := vocab.Card{CardID: "card 1", Term: "saudade", Meaning: "longing", EaseFactor: 2.5}
	if err := client.UpsertCard(context.Background(), vocab.SyncID("learner-1"), card); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if capturedMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", capturedMethod)
	}
	if capturedPath != "/v1/cards/card%201" && capturedPath != "/v1/cards/card 1" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if capturedBody.Term != "saudade" {
		t.Fatalf("unexpected body: %+v", capturedBody)
	}
}

func TestDeleteDeckIssuesDelete(t *testing.T) {
	var capturedMethod, capturedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.DeleteDeck(context.Background(), vocab.SyncID("learner-1"), "deck-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if capturedMethod != http.MethodDelete || capturedPath != "/v1/decks/deck-1" {
		t.Fatalf("unexpected request %s %s", capturedMethod, capturedPath)
	}
}

func TestClientSurfacesUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchDecks(context.Background(), vocab.SyncID("learner-1")); err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if err := client.UpsertDeck(context.Background(), vocab.SyncID("learner-1"), vocab.Deck{DeckID: "d"}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestEmptyIdentityIsNoOp(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	cards, err := client.FetchCards(ctx, "")
	if err != nil || cards != nil {
		t.Fatalf("expected nil, nil for empty identity, got %v, %v", cards, err)
	}
	if err := client.UpsertCard(ctx, "", vocab.Card{CardID: "c"}); err != nil {
		t.Fatalf("expected no-op upsert, got %v", err)
	}
	if err := client.DeleteCard(ctx, "", "c"); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
	if called {
		t.Fatalf("empty identity must never reach the server")
	}
}
