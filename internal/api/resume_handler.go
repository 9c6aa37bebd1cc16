package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"buildmate/internal/api/middleware"
	"buildmate/internal/database"
	"buildmate/internal/storage"
	"buildmate/internal/tasks"
)

const presignTTL = 5 * time.Minute

// taskEnqueuer 抽象出任务入队操作，便于测试替换。
type taskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	db          *gorm.DB
	asynqClient taskEnqueuer
	storage     *storage.Client
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, asynqClient *asynq.Client, storageClient *storage.Client) *ResumeHandler {
	return &ResumeHandler{
		db:          db,
		asynqClient: asynqClient,
		storage:     storageClient,
	}
}

// saveResumeRequest 的列表字段先收成原始 JSON，再统一做宽松校正。
type saveResumeRequest struct {
	FullName   string          `json:"full_name"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	Education  json.RawMessage `json:"education"`
	Experience json.RawMessage `json:"experience"`
	Skills     json.RawMessage `json:"skills"`
	PhotoData  *string         `json:"photo_data"`
}

type resumeResponse struct {
	FullName   string         `json:"full_name"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	Education  datatypes.JSON `json:"education"`
	Experience datatypes.JSON `json:"experience"`
	Skills     []string       `json:"skills"`
	PhotoData  *string        `json:"photo_data"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// GetResume 返回调用者的简历；没有简历时返回空对象而非 404。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	var row database.Resume
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		middleware.LoggerFromContext(c).Error("query resume failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	c.JSON(http.StatusOK, newResumeResponse(row))
}

// SaveResume 整体替换调用者的简历。缺失字段回落到默认值。
// 插入或更新的抉择交给存储层的 ON CONFLICT，不存在先查后写的窗口。
func (h *ResumeHandler) SaveResume(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req saveResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body")
		return
	}

	row := database.Resume{
		UserID:     userID,
		FullName:   req.FullName,
		Title:      req.Title,
		Summary:    req.Summary,
		Education:  coerceJSONArray(req.Education),
		Experience: coerceJSONArray(req.Experience),
		Skills:     coerceStringArray(req.Skills),
		PhotoData:  req.PhotoData,
	}

	ctx := c.Request.Context()
	err := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"full_name", "title", "summary",
				"education", "experience", "skills",
				"photo_data", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		middleware.LoggerFromContext(c).Error("save resume failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
		ServerError(c)
		return
	}

	Message(c, http.StatusOK, "Resume saved")
}

// ExportResume 将 PDF 导出任务入队并立即返回 202。
func (h *ResumeHandler) ExportResume(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	var row database.Resume
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Resume not found")
			return
		}
		middleware.LoggerFromContext(c).Error("query resume failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewPDFExportTask(userID, correlationID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("create export task failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	// 先入队再改状态：入队失败时状态保持不变，不会出现没有任务的 pending。
	info, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5))
	if err != nil {
		middleware.LoggerFromContext(c).Error("enqueue export task failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	// 任务已入队，状态写入失败只影响轮询的及时性，最终由 worker 收敛。
	if err := h.db.WithContext(ctx).Model(&row).
		Update("pdf_status", database.PdfStatusPending).Error; err != nil {
		middleware.LoggerFromContext(c).Warn("mark export pending failed", slog.Any("error", err))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "PDF export queued",
		"task_id": info.ID,
	})
}

// GetExportStatus 返回导出进度；完成后附带限时下载链接。
func (h *ResumeHandler) GetExportStatus(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	var row database.Resume
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Resume not found")
			return
		}
		middleware.LoggerFromContext(c).Error("query resume failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	status := row.PdfStatus
	if status == "" {
		status = "none"
	}

	if status != database.PdfStatusCompleted || row.PdfObjectKey == "" {
		c.JSON(http.StatusOK, gin.H{"status": status})
		return
	}

	url, err := h.storage.GeneratePresignedURL(ctx, row.PdfObjectKey, presignTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign export url failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "url": url})
}

// coerceJSONArray 保留合法的 JSON 数组，其余一律替换为空数组。
// 这是刻意的宽松行为：列表字段传错类型不报错，静默归零。
func coerceJSONArray(raw json.RawMessage) datatypes.JSON {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' || !json.Valid(trimmed) {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(trimmed)
}

// coerceStringArray 同上，skills 必须是字符串数组。
func coerceStringArray(raw json.RawMessage) pq.StringArray {
	var skills []string
	if err := json.Unmarshal(raw, &skills); err != nil || skills == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(skills)
}

func newResumeResponse(row database.Resume) resumeResponse {
	skills := []string(row.Skills)
	if skills == nil {
		skills = []string{}
	}
	resp := resumeResponse{
		FullName:   row.FullName,
		Title:      row.Title,
		Summary:    row.Summary,
		Education:  row.Education,
		Experience: row.Experience,
		Skills:     skills,
		PhotoData:  row.PhotoData,
		UpdatedAt:  row.UpdatedAt,
	}
	if len(resp.Education) == 0 {
		resp.Education = datatypes.JSON("[]")
	}
	if len(resp.Experience) == 0 {
		resp.Experience = datatypes.JSON("[]")
	}
	return resp
}
