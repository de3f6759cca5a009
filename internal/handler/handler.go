package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/retosmicro/authsvc/internal/auth"
	"github.com/retosmicro/authsvc/internal/models"
	"github.com/retosmicro/authsvc/internal/service"
	"github.com/retosmicro/authsvc/internal/storage"
)

type Handler struct {
	serviceLayer service.Service
	tokens       *auth.TokenManager
	log          *slog.Logger
}

func NewHandler(srvc service.Service, tokens *auth.TokenManager, lgr *slog.Logger) *Handler {
	return &Handler{
		serviceLayer: srvc,
		tokens:       tokens,
		log:          lgr,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(h.log))

	router.GET("/healthz", h.Health)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", h.Register)
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/forgot-password", h.ForgotPassword)
		authRoutes.POST("/reset-password", h.ResetPassword)
	}

	protected := router.Group("/")
	protected.Use(AuthMiddleware(h.tokens))
	{
		protected.GET("/saludo", h.Saludo)

		users := protected.Group("/users")
		{
			users.GET("/me", h.GetProfile)
			users.PATCH("/me", h.PatchProfile)
			users.DELETE("/me", h.DeleteAccount)
			users.PUT("/me/password", h.ChangePassword)

			users.GET("", RequireAdmin(), h.ListUsers)
		}
	}

	return router
}

type sessionResponse struct {
	Message     string      `json:"message,omitempty"`
	User        models.User `json:"user"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   *int64      `json:"expires_in"`
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Username  string `json:"username" binding:"required"`
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required,min=8"`
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, token, err := h.serviceLayer.Register(c.Request.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		log.Error("failed to register user", slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	log.Info("user registered", slog.Any("user_id", user.ID))

	c.JSON(http.StatusCreated, sessionResponse{
		Message:     "user registered",
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokens.TTL(),
	})
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, token, err := h.serviceLayer.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Error("failed to login", slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokens.TTL(),
	})
}

// POST /auth/forgot-password
//
// The response body is the same whether or not the email belongs to an
// account.
func (h *Handler) ForgotPassword(c *gin.Context) {
	const op = "handler.ForgotPassword"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid email")

		return
	}

	token, err := h.serviceLayer.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		log.Error("failed to create password reset", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal error")

		return
	}

	if token != "" {
		// Stand-in for the out-of-band delivery collaborator.
		log.Debug("password reset token issued", slog.String("token", token))
	}

	c.JSON(http.StatusOK, messageResponse{Message: "recovery email sent if the account exists"})
}

// POST /auth/reset-password
func (h *Handler) ResetPassword(c *gin.Context) {
	const op = "handler.ResetPassword"

	log := h.log.With(slog.String("op", op))

	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.serviceLayer.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		log.Error("failed to reset password", slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// GET /users/me
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op))

	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "invalid token")

		return
	}

	user, err := h.serviceLayer.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error("failed to get profile", slog.Any("user_id", claims.UserID), slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	c.JSON(http.StatusOK, user)
}

// PATCH /users/me
func (h *Handler) PatchProfile(c *gin.Context) {
	const op = "handler.PatchProfile"

	log := h.log.With(slog.String("op", op))

	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "invalid token")

		return
	}

	var req struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Phone     *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	user, err := h.serviceLayer.UpdateProfile(c.Request.Context(), claims.UserID, models.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		log.Error("failed to update profile", slog.Any("user_id", claims.UserID), slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	c.JSON(http.StatusOK, user)
}

// PUT /users/me/password
func (h *Handler) ChangePassword(c *gin.Context) {
	const op = "handler.ChangePassword"

	log := h.log.With(slog.String("op", op))

	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "invalid token")

		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.serviceLayer.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		log.Error("failed to change password", slog.Any("user_id", claims.UserID), slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// DELETE /users/me
func (h *Handler) DeleteAccount(c *gin.Context) {
	const op = "handler.DeleteAccount"

	log := h.log.With(slog.String("op", op))

	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "invalid token")

		return
	}

	if err := h.serviceLayer.DeleteAccount(c.Request.Context(), claims.UserID); err != nil {
		log.Error("failed to delete account", slog.Any("user_id", claims.UserID), slog.Any("error", err))

		status, msg := statusFromError(err)
		newErrorResponse(c, status, msg)

		return
	}

	log.Info("account deleted", slog.Any("user_id", claims.UserID))

	c.JSON(http.StatusOK, messageResponse{Message: "account deleted"})
}

type userListResponse struct {
	Items []models.User `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// GET /users (admin)
func (h *Handler) ListUsers(c *gin.Context) {
	const op = "handler.ListUsers"

	log := h.log.With(slog.String("op", op))

	params := storage.ListParams{
		Page:   atoiOrZero(c.Query("page")),
		Limit:  atoiOrZero(c.Query("limit")),
		Search: c.Query("search"),
		Status: c.Query("status"),
		SortBy: c.Query("sortBy"),
		Order:  c.Query("order"),
	}

	page, params, err := h.serviceLayer.ListUsers(c.Request.Context(), params)
	if err != nil {
		log.Error("failed to list users", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal error")

		return
	}

	c.JSON(http.StatusOK, userListResponse{
		Items: page.Items,
		Total: page.Total,
		Page:  params.Page,
		Limit: params.Limit,
	})
}

// GET /saludo?nombre=X
//
// The greeting is granted only to the token's own subject.
func (h *Handler) Saludo(c *gin.Context) {
	nombre := c.Query("nombre")
	if nombre == "" {
		newErrorResponse(c, http.StatusBadRequest, "nombre is required")

		return
	}

	claims, ok := currentClaims(c)
	if !ok {
		newErrorResponse(c, http.StatusUnauthorized, "invalid token")

		return
	}

	if claims.Subject != nombre {
		newErrorResponse(c, http.StatusForbidden, "name does not match token")

		return
	}

	c.JSON(http.StatusOK, gin.H{"mensaje": "Hola " + nombre})
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
