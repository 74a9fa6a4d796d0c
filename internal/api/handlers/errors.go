package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/service"
	"gw-bank/internal/transfer"
)

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type errorMapping struct {
	err    error
	status int
	reason string
}

var serviceErrors = []errorMapping{
	{service.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{service.ErrInvalidEmail, http.StatusUnprocessableEntity, "invalid_email"},
	{service.ErrWeakPassword, http.StatusUnprocessableEntity, "weak_password"},
	{service.ErrSSNRequired, http.StatusUnprocessableEntity, "ssn_required"},
	{service.ErrUnsupportedCountry, http.StatusUnprocessableEntity, "unsupported_country"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrInvalidOTP, http.StatusUnauthorized, "invalid_otp"},
	{service.ErrOTPExpired, http.StatusUnauthorized, "otp_expired"},
	{service.ErrNotVerified, http.StatusForbidden, "not_verified"},
	{service.ErrUserSuspended, http.StatusForbidden, "user_suspended"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{service.ErrInvalidStatus, http.StatusUnprocessableEntity, "invalid_status"},
	{service.ErrNegativeAmount, http.StatusUnprocessableEntity, "invalid_amount"},
}

// transferStatus - HTTP статус для причины отказа в переводе
func transferStatus(err error) int {
	switch {
	case errors.Is(err, transfer.ErrTransferBlocked):
		return http.StatusForbidden
	case errors.Is(err, transfer.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrTransferFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondError превращает ошибку сервиса в ответ {"error", "reason"}
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			c.JSON(m.status, ErrorResponse{Error: m.err.Error(), Reason: m.reason})
			return
		}
	}

	if reason := transfer.Reason(err); reason != "" {
		status := transferStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			// Причину сбоя хранилища наружу не отдаем
			logger.Errorf("Transfer failed: %v", err)
			message = transfer.ErrTransferFailed.Error()
		}
		c.JSON(status, ErrorResponse{Error: message, Reason: reason})
		return
	}

	logger.Errorf("Request failed: %v", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Reason: "internal_error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error(), Reason: "invalid_request"})
}
