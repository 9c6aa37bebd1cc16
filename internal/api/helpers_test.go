package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"buildmate/internal/api/middleware"
	"buildmate/internal/auth"
	"buildmate/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.Resume{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	authService, err := auth.NewAuthService("handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return authService
}

// newTestRouter 只挂载与数据库交互的核心路由，导出与资产路由另行测试。
func newTestRouter(t *testing.T, db *gorm.DB, authService *auth.AuthService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authHandler := NewAuthHandler(db, authService, nil)
	resumeHandler := NewResumeHandler(db, nil, nil)
	authMiddleware := middleware.AuthMiddleware(authService)

	router := gin.New()
	apiGroup := router.Group("/api")
	apiGroup.POST("/signup", authHandler.Signup)
	apiGroup.POST("/login", authHandler.Login)

	resumeGroup := apiGroup.Group("/resume")
	resumeGroup.Use(authMiddleware)
	resumeGroup.GET("", resumeHandler.GetResume)
	resumeGroup.POST("", resumeHandler.SaveResume)
	resumeGroup.GET("/export", resumeHandler.GetExportStatus)

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode message from %q: %v", w.Body.String(), err)
	}
	return resp.Message
}

func signupAndLogin(t *testing.T, router *gin.Engine, email, password string) string {
	t.Helper()

	if w := doJSON(t, router, http.MethodPost, "/api/signup", "", gin.H{"email": email, "password": password}); w.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body=%s", w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"email": email, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token
}
