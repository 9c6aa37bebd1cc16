package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

type fetchedResume struct {
	FullName   string           `json:"full_name"`
	Title      string           `json:"title"`
	Summary    string           `json:"summary"`
	Education  []map[string]any `json:"education"`
	Experience []map[string]any `json:"experience"`
	Skills     []string         `json:"skills"`
	PhotoData  *string          `json:"photo_data"`
}

func fetchResume(t *testing.T, router *gin.Engine, token string) (fetchedResume, map[string]json.RawMessage) {
	t.Helper()
	w := doJSON(t, router, http.MethodGet, "/api/resume", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status = %d, body=%s", w.Code, w.Body.String())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode fetch body: %v", err)
	}
	var resume fetchedResume
	if err := json.Unmarshal(w.Body.Bytes(), &resume); err != nil {
		t.Fatalf("decode resume: %v", err)
	}
	return resume, raw
}

func TestGetResumeWithoutSavedResumeReturnsEmptyObject(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	w := doJSON(t, router, http.MethodGet, "/api/resume", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (never 404)", w.Code)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if len(raw) != 0 {
		t.Fatalf("body = %s, want {}", w.Body.String())
	}
}

func TestGetResumeRequiresToken(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))

	w := doJSON(t, router, http.MethodGet, "/api/resume", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := messageOf(t, w); msg != "No token" {
		t.Fatalf("message = %q, want \"No token\"", msg)
	}
}

func TestSaveResumeThenFetch(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	body := gin.H{
		"full_name":  "Alice",
		"title":      "Engineer",
		"skills":     []string{"go", "sql"},
		"experience": []gin.H{{"title": "Backend Dev", "company": "Acme", "period": "2020-2024"}},
	}
	w := doJSON(t, router, http.MethodPost, "/api/resume", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body=%s", w.Code, w.Body.String())
	}
	if msg := messageOf(t, w); msg != "Resume saved" {
		t.Fatalf("save message = %q", msg)
	}

	resume, _ := fetchResume(t, router, token)
	if resume.FullName != "Alice" || resume.Title != "Engineer" {
		t.Fatalf("fetched (%q, %q), want (Alice, Engineer)", resume.FullName, resume.Title)
	}
	if resume.Summary != "" {
		t.Fatalf("summary = %q, want default empty", resume.Summary)
	}
	if len(resume.Skills) != 2 || resume.Skills[0] != "go" {
		t.Fatalf("skills = %v", resume.Skills)
	}
	if len(resume.Experience) != 1 || resume.Experience[0]["company"] != "Acme" {
		t.Fatalf("experience = %v", resume.Experience)
	}
	if len(resume.Education) != 0 {
		t.Fatalf("education = %v, want empty", resume.Education)
	}
	if resume.PhotoData != nil {
		t.Fatalf("photo_data = %v, want null", resume.PhotoData)
	}
}

func TestSaveResumeIsFullReplace(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	if w := doJSON(t, router, http.MethodPost, "/api/resume", token, gin.H{"skills": []string{"a"}}); w.Code != http.StatusOK {
		t.Fatalf("first save status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/resume", token, gin.H{}); w.Code != http.StatusOK {
		t.Fatalf("second save status = %d", w.Code)
	}

	resume, _ := fetchResume(t, router, token)
	if len(resume.Skills) != 0 {
		t.Fatalf("skills = %v, want reset to empty", resume.Skills)
	}
	if resume.FullName != "" {
		t.Fatalf("full_name = %q, want reset to empty", resume.FullName)
	}
}

func TestSaveResumeCoercesNonArrayFields(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	body := gin.H{
		"full_name":  "Alice",
		"education":  "not-an-array",
		"experience": gin.H{"also": "not-an-array"},
		"skills":     42,
	}
	w := doJSON(t, router, http.MethodPost, "/api/resume", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body=%s", w.Code, w.Body.String())
	}

	resume, raw := fetchResume(t, router, token)
	if len(resume.Education) != 0 || len(resume.Experience) != 0 || len(resume.Skills) != 0 {
		t.Fatalf("list fields not coerced to empty: %s", raw)
	}
	if string(raw["education"]) != "[]" {
		t.Fatalf("education json = %s, want []", raw["education"])
	}
}

func TestSaveResumeIsIdempotentPerUser(t *testing.T) {
	db := newTestDB(t)
	router := newTestRouter(t, db, newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	for i := 0; i < 3; i++ {
		if w := doJSON(t, router, http.MethodPost, "/api/resume", token, gin.H{"full_name": "Alice"}); w.Code != http.StatusOK {
			t.Fatalf("save %d status = %d", i, w.Code)
		}
	}

	var count int64
	if err := db.Table("resumes").Count(&count).Error; err != nil {
		t.Fatalf("count resumes: %v", err)
	}
	if count != 1 {
		t.Fatalf("resume rows = %d, want exactly 1", count)
	}
}

func TestExportStatusBeforeAnyExport(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))
	token := signupAndLogin(t, router, "alice@x.com", "pw123")

	if w := doJSON(t, router, http.MethodGet, "/api/resume/export", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status without resume = %d, want 404", w.Code)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/resume", token, gin.H{"full_name": "Alice"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/api/resume/export", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode export status: %v", err)
	}
	if resp.Status != "none" || resp.URL != "" {
		t.Fatalf("export status = %+v, want {none, no url}", resp)
	}
}

// 完整走一遍注册→登录→保存→读取的场景。
func TestSignupLoginSaveFetchScenario(t *testing.T) {
	router := newTestRouter(t, newTestDB(t), newTestAuthService(t))

	if w := doJSON(t, router, http.MethodPost, "/api/signup", "", gin.H{"email": "alice@x.com", "password": "pw123"}); w.Code != http.StatusOK {
		t.Fatalf("signup status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/signup", "", gin.H{"email": "alice@x.com", "password": "pw123"}); w.Code != http.StatusBadRequest || messageOf(t, w) != "Email already exists" {
		t.Fatalf("duplicate signup = %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"email": "alice@x.com", "password": "wrongpw"}); w.Code != http.StatusBadRequest || messageOf(t, w) != "Invalid credentials" {
		t.Fatalf("wrong password login = %d %s", w.Code, w.Body.String())
	}

	token := func() string {
		w := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"email": "alice@x.com", "password": "pw123"})
		if w.Code != http.StatusOK {
			t.Fatalf("login status = %d", w.Code)
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
			t.Fatalf("login token missing: %s", w.Body.String())
		}
		return resp.Token
	}()

	w := doJSON(t, router, http.MethodGet, "/api/resume", token, nil)
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Fatalf("initial fetch = %d %s, want 200 {}", w.Code, w.Body.String())
	}

	if w := doJSON(t, router, http.MethodPost, "/api/resume", token, gin.H{"full_name": "Alice"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}

	resume, _ := fetchResume(t, router, token)
	if resume.FullName != "Alice" {
		t.Fatalf("full_name = %q, want Alice", resume.FullName)
	}
	if resume.Title != "" || resume.Summary != "" || len(resume.Skills) != 0 {
		t.Fatalf("non-default fields after minimal save: %+v", resume)
	}
}
