package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/service"
)

// AdminHandler обработчик админ-панели
type AdminHandler struct {
	service *service.BankService
	logger  *logrus.Logger
}

// NewAdminHandler создает новый обработчик админ-панели
func NewAdminHandler(service *service.BankService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// StatusRequest запрос на смену статуса пользователя
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// BalanceRequest запрос на установку баланса
type BalanceRequest struct {
	Currency string          `json:"currency" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// FeeRequest запрос на выставление или снятие комиссии за конвертацию
type FeeRequest struct {
	Pending  bool            `json:"pending"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ListUsers возвращает список пользователей
// @Summary List users
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param q query string false "Search by email, name or account number"
// @Param limit query int false "Max entries (default 50, max 200)"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			badRequest(c, err)
			return
		}
	}

	users, err := h.service.ListUsers(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetStatistics возвращает статистику системы
// @Summary System statistics
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} storages.SystemStatistics
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/stats [get]
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	stats, err := h.service.GetStatistics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// SetStatus блокирует или разблокирует пользователя
// @Summary Set user status
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body StatusRequest true "active or suspended"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/status [put]
func (h *AdminHandler) SetStatus(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.service.SetUserStatus(c.Request.Context(), userID, req.Status); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// SetBalance устанавливает баланс пользователя в валюте
// @Summary Set user balance
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body BalanceRequest true "New balance"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/balance [put]
func (h *AdminHandler) SetBalance(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.service.AdjustBalance(c.Request.Context(), userID, req.Currency, req.Amount); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Balance updated"})
}

// SetFee выставляет или снимает комиссию за конвертацию
// @Summary Set conversion fee
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body FeeRequest true "Fee state"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/fee [put]
func (h *AdminHandler) SetFee(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req FeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.service.SetConversionFee(c.Request.Context(), userID, req.Pending, req.Amount, req.Currency); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversion fee updated"})
}

// DeleteUser удаляет пользователя со счетом, балансами и историей
// @Summary Delete user
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func pathUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid user id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return userID, true
}
