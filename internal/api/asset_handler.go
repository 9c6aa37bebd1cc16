package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"buildmate/internal/api/middleware"
	"buildmate/internal/storage"
)

// objectStorage 抽象出对象存储操作，便于测试替换。
type objectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	StatObject(ctx context.Context, objectKey string) (minio.ObjectInfo, error)
}

var photoContentTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// AssetHandler 负责处理简历照片的上传与访问。
type AssetHandler struct {
	Storage   objectStorage
	Logger    *slog.Logger
	ClamdAddr string
	MaxBytes  int64
}

// NewAssetHandler 返回 AssetHandler 实例。
func NewAssetHandler(storageClient *storage.Client, logger *slog.Logger, clamdAddr string, maxBytes int64) *AssetHandler {
	return &AssetHandler{
		Storage:   storageClient,
		Logger:    logger,
		ClamdAddr: clamdAddr,
		MaxBytes:  maxBytes,
	}
}

// UploadPhoto 处理受保护的照片上传，配置了 clamd 时先做病毒扫描。
func (h *AssetHandler) UploadPhoto(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("photo")
	if err != nil {
		BadRequest(c, "Photo file required")
		return
	}

	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		BadRequest(c, "Photo too large")
		return
	}

	contentType := file.Header.Get("Content-Type")
	ext, ok := photoContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		BadRequest(c, "Unsupported photo type")
		return
	}

	if h.ClamdAddr != "" {
		clean, err := h.scanUpload(file)
		if err != nil {
			middleware.LoggerFromContext(c).Error("scan photo failed", slog.Any("error", err))
			ServerError(c)
			return
		}
		if !clean {
			BadRequest(c, "Malicious file detected")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		middleware.LoggerFromContext(c).Error("open photo failed", slog.Any("error", err))
		ServerError(c)
		return
	}
	defer reader.Close()

	objectKey := fmt.Sprintf("photo-assets/%d/%s.%s", userID, uuid.NewString(), ext)
	ctx := c.Request.Context()
	if _, err := h.Storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		middleware.LoggerFromContext(c).Error("upload photo failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	url, err := h.Storage.GeneratePresignedURL(ctx, objectKey, presignTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign photo failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"object_key": objectKey, "url": url})
}

// GetPhotoURL 为调用者自己的照片生成限时访问链接。
func (h *AssetHandler) GetPhotoURL(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := strings.TrimSpace(c.Query("key"))
	if !isValidPhotoObjectKey(userID, objectKey) {
		BadRequest(c, "Invalid object key")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Storage.StatObject(ctx, objectKey); err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "Photo not found")
			return
		}
		middleware.LoggerFromContext(c).Error("stat photo failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	url, err := h.Storage.GeneratePresignedURL(ctx, objectKey, presignTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign photo failed", slog.Any("error", err))
		ServerError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *AssetHandler) scanUpload(file *multipart.FileHeader) (bool, error) {
	reader, err := file.Open()
	if err != nil {
		return false, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	clamdClient := clamd.NewClamd(h.ClamdAddr)

	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	if err != nil {
		return false, fmt.Errorf("scan stream: %w", err)
	}

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return false, nil
		}
	}
	return true, nil
}
