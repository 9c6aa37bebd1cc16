package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"buildmate/internal/database"
	"buildmate/internal/errcode"
	"buildmate/internal/pdf"
	"buildmate/internal/storage"
	"buildmate/internal/tasks"
)

// PDFExportHandler 负责消费简历 PDF 导出任务。
type PDFExportHandler struct {
	db          *gorm.DB
	storage     *storage.Client
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewPDFExportHandler 创建任务处理器。
func NewPDFExportHandler(db *gorm.DB, storageClient *storage.Client, redisClient *redis.Client, logger *slog.Logger) *PDFExportHandler {
	return &PDFExportHandler{
		db:          db,
		storage:     storageClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *PDFExportHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.PDFExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting pdf export task")

	var row database.Resume
	if err := h.db.WithContext(ctx).Where("user_id = ?", payload.UserID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("resume not found, skipping task")
			return nil
		}
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	// 最后一次重试仍失败时标记失败并通知客户端，中途的重试不落状态。
	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		h.markExportFailed(ctx, &row, payload, retErr, log)
	}()

	htmlContent, err := buildResumeHTML(row)
	if err != nil {
		log.Error("build resume html failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := pdf.GenerateFromHTML(ctx, htmlContent)
	if err != nil {
		log.Error("generate pdf failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("generated-resumes/%d/%s.pdf", payload.UserID, uuid.NewString())
	pdfReader := bytes.NewReader(pdfBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, pdfReader, int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"pdf_object_key": objectName,
		"pdf_status":     database.PdfStatusCompleted,
	}
	if err := h.db.WithContext(ctx).Model(&row).Updates(update).Error; err != nil {
		log.Error("update resume export state failed", slog.Any("error", err))
		return err
	}

	notify := ExportNotifyMessage{
		Status:        "completed",
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishNotify(ctx, payload.UserID, notify); err != nil {
		log.Error("publish export notification failed", slog.Any("error", err))
		return err
	}

	log.Info("pdf export task completed")
	return nil
}

// markExportFailed 将简历标记为导出失败并尽力推送错误通知。
func (h *PDFExportHandler) markExportFailed(ctx context.Context, row *database.Resume, payload tasks.PDFExportPayload, cause error, log *slog.Logger) {
	if err := h.db.WithContext(ctx).Model(row).
		Update("pdf_status", database.PdfStatusFailed).Error; err != nil {
		log.Error("mark export failed", slog.Any("error", err))
	}
	notify := ExportNotifyMessage{
		Status:        "error",
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.SystemError,
		ErrorMessage:  cause.Error(),
	}
	if err := h.publishNotify(ctx, payload.UserID, notify); err != nil {
		log.Error("publish export error notification failed", slog.Any("error", err))
	}
}

func (h *PDFExportHandler) publishNotify(ctx context.Context, userID uint, notify ExportNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
