package image

import (
	"os"
	"path/filepath"
	"time"

	"formula-ocr-server/internal/platform/logging"

	"github.com/google/uuid"
)

// DebugWriter stores a copy of each encoded image for troubleshooting.
// Failures are logged and never surface to the caller.
type DebugWriter struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
}

func NewDebugWriter(dir string, logger *logging.Logger) *DebugWriter {
	if dir == "" {
		dir = "."
	}
	return &DebugWriter{dir: dir, logger: logger, now: time.Now}
}

// Write saves data and returns its path, or "" when the write failed.
func (w *DebugWriter) Write(data []byte) string {
	if w == nil {
		return ""
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.WarnTag("图像", "创建调试目录失败: %v", err)
		return ""
	}

	path := filepath.Join(w.dir, debugFilename(w.now(), uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.logger.WarnTag("图像", "保存调试图片失败: %v", err)
		return ""
	}
	w.logger.InfoTag("图像", "调试图片已保存: %s", path)
	return path
}
