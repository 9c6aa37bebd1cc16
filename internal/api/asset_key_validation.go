package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxPhotoObjectKeyLen = 200

var photoKeySuffixes = []string{".png", ".jpg", ".webp"}

// isValidPhotoObjectKey 约束照片对象键必须落在调用者自己的前缀下，
// 且不携带任何路径逃逸成分。
func isValidPhotoObjectKey(userID uint, key string) bool {
	if key == "" || len(key) > maxPhotoObjectKeyLen || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, fmt.Sprintf("photo-assets/%d/", userID)) {
		return false
	}
	for _, bad := range []string{"..", "\\", "//"} {
		if strings.Contains(key, bad) {
			return false
		}
	}

	lower := strings.ToLower(key)
	for _, suffix := range photoKeySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
