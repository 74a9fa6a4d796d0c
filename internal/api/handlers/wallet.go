package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/api/middleware"
	"gw-bank/internal/service"
	"gw-bank/internal/transfer"
)

// WalletHandler обработчик для счета, балансов и переводов
type WalletHandler struct {
	service *service.BankService
	logger  *logrus.Logger
}

// NewWalletHandler создает новый обработчик кошелька
func NewWalletHandler(service *service.BankService, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{
		service: service,
		logger:  logger,
	}
}

// GetAccount возвращает счет пользователя
// @Summary Get account
// @Description Account number, country and owner details; the account is opened on first access
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.AccountDetails
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/account [get]
func (h *WalletHandler) GetAccount(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Reason: "unauthorized"})
		return
	}

	account, err := h.service.GetAccount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// GetBalances возвращает балансы пользователя
// @Summary Get balances
// @Description Balance per currency with USD equivalent
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/balances [get]
func (h *WalletHandler) GetBalances(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Reason: "unauthorized"})
		return
	}

	balances, err := h.service.GetBalances(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// GetTransactions возвращает журнал операций
// @Summary Get transactions
// @Description Most recent ledger entries, newest first
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Max entries (default 50, max 200)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/transactions [get]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Reason: "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
	}

	transactions, err := h.service.GetTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// Transfer выполняет перевод на другой счет
// @Summary Transfer funds
// @Description Validate and apply a transfer; repeat-safe with the Idempotency-Key header
// @Tags wallet
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body transfer.Request true "Transfer data"
// @Success 200 {object} transfer.Confirmation
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/transfers [post]
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Reason: "unauthorized"})
		return
	}

	var req transfer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	confirmation, err := h.service.Transfer(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Transfer completed",
		"transfer": confirmation,
	})
}
