package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// IdempotencyHeader - заголовок с ключом идемпотентности
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 255

// IdempotencyStore хранит ответы на запросы с ключом идемпотентности.
// ReserveIdempotencyKey должен атомарно занимать ключ и возвращать storages.ErrAlreadyExists,
// если ключ уже занят, в том числе другим экземпляром сервиса.
type IdempotencyStore interface {
	GetIdempotentResponse(ctx context.Context, userID uuid.UUID, key string) (*storages.IdempotentResponse, error)
	ReserveIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error
	SaveIdempotentResponse(ctx context.Context, resp *storages.IdempotentResponse) error
	ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error
}

// Idempotency повторяет сохраненный ответ, если пользователь уже присылал запрос с тем же ключом.
// Ставится после Auth; запросы без заголовка проходят как обычно.
func Idempotency(store IdempotencyStore, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abort(c, http.StatusUnprocessableEntity, "Idempotency-Key is too long", "invalid_idempotency_key")
			return
		}

		userID, err := GetUserID(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Unauthorized", "unauthorized")
			return
		}

		ctx := c.Request.Context()
		if replayStored(c, store, logger, userID, key) {
			return
		}

		// Ключ занимается в хранилище до запуска обработчика: между чтением и резервом
		// другой запрос мог успеть завершиться, тогда повторяем его ответ.
		err = store.ReserveIdempotencyKey(ctx, userID, key)
		if errors.Is(err, storages.ErrAlreadyExists) {
			if !replayStored(c, store, logger, userID, key) {
				abort(c, http.StatusConflict, "A request with this Idempotency-Key is in progress", "idempotency_conflict")
			}
			return
		}
		if err != nil {
			logger.Errorf("Failed to reserve idempotency key: %v", err)
			abort(c, http.StatusInternalServerError, "Internal server error", "internal_error")
			return
		}

		completed := false
		defer func() {
			if !completed {
				// 5xx и паника не сохраняются: такой запрос можно повторить
				if err := store.ReleaseIdempotencyKey(context.WithoutCancel(ctx), userID, key); err != nil {
					logger.Warnf("Failed to release idempotency key: %v", err)
				}
			}
		}()

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		// Обработчик отработал: резерв не снимаем, даже если ответ не сохранится
		completed = true

		err = store.SaveIdempotentResponse(context.WithoutCancel(ctx), &storages.IdempotentResponse{
			UserID: userID,
			Key:    key,
			Status: status,
			Body:   recorder.body.Bytes(),
		})
		if err != nil {
			logger.Warnf("Failed to save idempotent response, key stays reserved: %v", err)
		}
	}
}

// replayStored отвечает сохраненным ответом или 409, если запрос с этим ключом еще выполняется.
// Возвращает false, если ключ свободен.
func replayStored(c *gin.Context, store IdempotencyStore, logger *logrus.Logger, userID uuid.UUID, key string) bool {
	stored, err := store.GetIdempotentResponse(c.Request.Context(), userID, key)
	switch {
	case errors.Is(err, storages.ErrNotFound):
		return false
	case err != nil:
		logger.Errorf("Failed to read idempotent response: %v", err)
		abort(c, http.StatusInternalServerError, "Internal server error", "internal_error")
	case stored.Pending():
		abort(c, http.StatusConflict, "A request with this Idempotency-Key is in progress", "idempotency_conflict")
	default:
		c.Header("Idempotent-Replayed", "true")
		c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
		c.Abort()
	}
	return true
}

// bodyRecorder дублирует тело ответа в буфер
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
