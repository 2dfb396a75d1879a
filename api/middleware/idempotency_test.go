package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func invoiceRequest(owner uuid.UUID, body string, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/invoices"}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	req = req.WithContext(WithActor(ctx, uuid.New(), owner, nil))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func createdHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"invoiceNumber":"INV-000001"}}`))
	})
}

func TestIdempotencyOptionalKeyPassesThrough(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, IdempotencyPolicy{}, nil)(createdHandler(&calls))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, invoiceRequest(uuid.New(), `{}`, ""))
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run for every keyless request, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyRequiredKey(t *testing.T) {
	var calls int
	handler := Idempotency(newFakeStore(), IdempotencyPolicy{Required: true}, nil)(createdHandler(&calls))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, invoiceRequest(uuid.New(), `{}`, ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if calls != 0 {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, IdempotencyPolicy{TTL: time.Hour}, nil)(createdHandler(&calls))
	owner := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, invoiceRequest(owner, `{"customerId":"c"}`, "abc"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}
	if first.Header().Get(responses.HeaderIdempotentReplay) != "" {
		t.Fatalf("first response must not be marked as a replay")
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, invoiceRequest(owner, `{"customerId":"c"}`, "abc"))
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", replay.Code)
	}
	if replay.Header().Get(responses.HeaderIdempotentReplay) != "true" {
		t.Fatalf("expected replay header")
	}
	if replay.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if replay.Body.String() != first.Body.String() {
		t.Fatalf("expected stored body, got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for _, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("expected policy ttl, got %s", ttl)
		}
	}
}

func TestIdempotencyKeysAreOwnerScoped(t *testing.T) {
	var calls int
	handler := Idempotency(newFakeStore(), IdempotencyPolicy{}, nil)(createdHandler(&calls))

	handler.ServeHTTP(httptest.NewRecorder(), invoiceRequest(uuid.New(), `{}`, "shared"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, invoiceRequest(uuid.New(), `{}`, "shared"))
	if resp.Header().Get(responses.HeaderIdempotentReplay) != "" {
		t.Fatalf("a different owner must not see another owner's response")
	}
	if calls != 2 {
		t.Fatalf("expected two executions, got %d", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, IdempotencyPolicy{}, nil)(createdHandler(&calls))
	owner := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), invoiceRequest(owner, `{"foo":"bar"}`, "xyz"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, invoiceRequest(owner, `{"foo":"diff"}`, "xyz"))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyDoesNotStoreErrors(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusConflict)
	}))
	owner := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), invoiceRequest(owner, `{}`, "retry"))
	handler.ServeHTTP(httptest.NewRecorder(), invoiceRequest(owner, `{}`, "retry"))
	if calls != 2 {
		t.Fatalf("failed responses should be retried, handler ran %d times", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected no stored record")
	}
}
