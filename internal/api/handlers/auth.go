package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/api/middleware"
	"gw-bank/internal/service"
)

// AuthHandler обработчик для регистрации и входа
type AuthHandler struct {
	service       *service.BankService
	jwtMiddleware *middleware.JWTMiddleware
	logger        *logrus.Logger
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(service *service.BankService, jwtMiddleware *middleware.JWTMiddleware, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		service:       service,
		jwtMiddleware: jwtMiddleware,
		logger:        logger,
	}
}

// RegisterRequest запрос на регистрацию
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"first_name" binding:"required,max=100"`
	LastName    string `json:"last_name" binding:"required,max=100"`
	PhoneNumber string `json:"phone_number" binding:"max=32"`
	Address     string `json:"address" binding:"max=255"`
	DateOfBirth string `json:"date_of_birth"`
	SSN         string `json:"ssn"`
	Country     string `json:"country" binding:"required,len=2"`
}

// VerifyRequest запрос на подтверждение email
type VerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// LoginRequest запрос на авторизацию
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register регистрирует нового пользователя
// @Summary Register a new user
// @Description Create an unverified user and send a verification code by email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.service.RegisterUser(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		DateOfBirth: req.DateOfBirth,
		SSN:         req.SSN,
		Country:     req.Country,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered, verification code sent",
		"user_id": user.ID,
	})
}

// Verify подтверждает email кодом и открывает счет
// @Summary Verify email
// @Description Confirm the email with the one-time code; opens the account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verification code"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.service.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Email verified",
		"account_number": account.AccountNumber,
	})
}

// Login авторизует пользователя
// @Summary Login user
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, account, err := h.service.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Генерируем JWT токен
	token, err := h.jwtMiddleware.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.Errorf("Failed to generate token: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token", Reason: "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"role":           user.Role,
		"account_number": account.AccountNumber,
	})
}
