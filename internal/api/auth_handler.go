package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"buildmate/internal/api/middleware"
	"buildmate/internal/auth"
	"buildmate/internal/database"
)

// AuthHandler 处理注册与登录。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	logger      *slog.Logger
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		logger:      logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup 创建新用户账号。注册成功不自动登录。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	// 请求体缺失或不可解析时按字段缺失处理。
	_ = c.ShouldBindJSON(&req)
	if req.Email == "" || req.Password == "" {
		BadRequest(c, "Email and password required")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		logger.Info("signup conflict: email already registered")
		BadRequest(c, "Email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("signup lookup failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	user := database.User{
		Email:        req.Email,
		PasswordHash: hashed,
	}

	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		// 预检查与插入之间存在并发窗口，唯一索引兜底。
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.Info("signup conflict: lost insert race")
			BadRequest(c, "Email already exists")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	Message(c, http.StatusOK, "User registered")
}

// Login 校验口令并返回 Token。
// 未注册邮箱与密码错误刻意返回相同响应，避免泄露注册状态。
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	_ = c.ShouldBindJSON(&req)
	if req.Email == "" || req.Password == "" {
		BadRequest(c, "Email and password required")
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			BadRequest(c, "Invalid credentials")
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		BadRequest(c, "Invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email)
	if err != nil {
		logger.Error("generate token failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
