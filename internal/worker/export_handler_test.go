package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"buildmate/internal/database"
	"buildmate/internal/tasks"
)

func newWorkerTestDB(t *testing.T) *gorm.DB {
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

func newTestExportHandler(t *testing.T, db *gorm.DB) *PDFExportHandler {
	t.Helper()
	// 端口 1 不可达，通知发布走失败分支，状态落库不受影响。
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPDFExportHandler(db, nil, redisClient, logger)
}

// 普通 context 没有 asynq 的重试元数据，绝不能按最后一次尝试处理。
func TestIsFinalAsynqAttemptRequiresTaskMetadata(t *testing.T) {
	if isFinalAsynqAttempt(context.Background()) {
		t.Fatal("plain context treated as final attempt")
	}
}

func TestMarkExportFailedUpdatesStatus(t *testing.T) {
	db := newWorkerTestDB(t)
	handler := newTestExportHandler(t, db)

	row := database.Resume{UserID: 7, FullName: "Alice", PdfStatus: database.PdfStatusPending}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}

	payload := tasks.PDFExportPayload{UserID: 7, CorrelationID: "corr-1"}
	handler.markExportFailed(context.Background(), &row, payload, errors.New("render crashed"),
		handler.logger)

	var reloaded database.Resume
	if err := db.Where("user_id = ?", uint(7)).First(&reloaded).Error; err != nil {
		t.Fatalf("reload resume: %v", err)
	}
	if reloaded.PdfStatus != database.PdfStatusFailed {
		t.Fatalf("pdf_status = %q, want %q", reloaded.PdfStatus, database.PdfStatusFailed)
	}
}

func TestProcessTaskSkipsMissingResume(t *testing.T) {
	db := newWorkerTestDB(t)
	handler := newTestExportHandler(t, db)

	task, err := tasks.NewPDFExportTask(42, "corr-2")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("missing resume should not error (no retry value): %v", err)
	}
}

func TestProcessTaskRejectsMalformedPayload(t *testing.T) {
	handler := newTestExportHandler(t, newWorkerTestDB(t))

	task := asynq.NewTask(tasks.TypePDFExport, []byte("not-json"))
	if err := handler.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("malformed payload accepted")
	}
}
