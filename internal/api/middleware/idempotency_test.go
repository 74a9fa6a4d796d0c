package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gw-bank/internal/logger"
	"gw-bank/internal/storages"
	"gw-bank/internal/storages/memory"
)

type gateKey struct{}

// gatedStore задерживает первое чтение ключа у запроса, помеченного gateKey
type gatedStore struct {
	*memory.Storage
	gate   chan struct{}
	waited atomic.Bool
}

func (s *gatedStore) GetIdempotentResponse(ctx context.Context, userID uuid.UUID, key string) (*storages.IdempotentResponse, error) {
	resp, err := s.Storage.GetIdempotentResponse(ctx, userID, key)
	if ctx.Value(gateKey{}) != nil && s.waited.CompareAndSwap(false, true) {
		<-s.gate
	}
	return resp, err
}

func newIdempotentRouter(store IdempotencyStore, userID uuid.UUID, status *atomic.Int32, calls *atomic.Int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/transfers",
		func(c *gin.Context) { c.Set(ContextUserID, userID) },
		Idempotency(store, logger.Discard()),
		func(c *gin.Context) {
			n := calls.Add(1)
			code := http.StatusOK
			if status != nil && status.Load() != 0 {
				code = int(status.Load())
			}
			c.JSON(code, gin.H{"n": n})
		},
	)
	return router
}

func postWithKey(router http.Handler, ctx context.Context, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transfers", nil).WithContext(ctx)
	req.Header.Set(IdempotencyHeader, key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplay(t *testing.T) {
	var calls atomic.Int32
	router := newIdempotentRouter(memory.New(), uuid.New(), nil, &calls)

	first := postWithKey(router, context.Background(), "key-1")
	second := postWithKey(router, context.Background(), "key-1")

	if calls.Load() != 1 {
		t.Fatalf("Expected handler to run once, got %d", calls.Load())
	}
	if second.Code != first.Code || second.Body.String() != first.Body.String() {
		t.Fatalf("Expected replay of %d %s, got %d %s", first.Code, first.Body, second.Code, second.Body)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("Expected Idempotent-Replayed header on replay")
	}
}

func TestIdempotencyKeyFinishedWhileSecondRequestWaits(t *testing.T) {
	var calls atomic.Int32
	store := &gatedStore{Storage: memory.New(), gate: make(chan struct{})}
	router := newIdempotentRouter(store, uuid.New(), nil, &calls)

	// Второй запрос читает ключ до завершения первого и ждет
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postWithKey(router, context.WithValue(context.Background(), gateKey{}, true), "key-1")
	}()
	for !store.waited.Load() {
		time.Sleep(time.Millisecond)
	}

	first := postWithKey(router, context.Background(), "key-1")
	close(store.gate)
	second := <-done

	if calls.Load() != 1 {
		t.Fatalf("Expected handler to run once, got %d", calls.Load())
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("Expected replay of %s, got %d %s", first.Body, second.Code, second.Body)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("Expected Idempotent-Replayed header on replay")
	}
}

func TestIdempotencyPendingKeyConflict(t *testing.T) {
	var calls atomic.Int32
	store := memory.New()
	userID := uuid.New()
	router := newIdempotentRouter(store, userID, nil, &calls)

	if err := store.ReserveIdempotencyKey(context.Background(), userID, "key-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	w := postWithKey(router, context.Background(), "key-1")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", w.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("Expected handler not to run, got %d", calls.Load())
	}
}

func TestIdempotencyServerErrorReleasesKey(t *testing.T) {
	var calls, status atomic.Int32
	status.Store(http.StatusInternalServerError)
	router := newIdempotentRouter(memory.New(), uuid.New(), &status, &calls)

	if w := postWithKey(router, context.Background(), "key-1"); w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}

	status.Store(http.StatusOK)
	w := postWithKey(router, context.Background(), "key-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("Expected fresh execution after 500, got %d replayed=%q", w.Code, w.Header().Get("Idempotent-Replayed"))
	}
	if calls.Load() != 2 {
		t.Fatalf("Expected handler to run twice, got %d", calls.Load())
	}
}

func TestIdempotencyKeyTooLong(t *testing.T) {
	var calls atomic.Int32
	router := newIdempotentRouter(memory.New(), uuid.New(), nil, &calls)

	key := make([]byte, maxIdempotencyKeyLength+1)
	for i := range key {
		key[i] = 'k'
	}
	if w := postWithKey(router, context.Background(), string(key)); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", w.Code)
	}
}
