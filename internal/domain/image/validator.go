package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"formula-ocr-server/internal/platform/errors"
	"formula-ocr-server/internal/platform/logging"
)

const (
	msgInvalidType = "Invalid file type, only PNG/JPEG allowed"
	msgTooLarge    = "File too large, max %s"
	msgInvalid     = "Invalid image"
)

var imageSignatures = map[string][]byte{
	"image/jpeg": {0xFF, 0xD8},
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
}

// SecurityValidator enforces the upload constraints before any decoding work.
type SecurityValidator struct {
	maxFileSize  int64
	maxPixels    int64
	allowedTypes []string
	logger       *logging.Logger
}

func NewSecurityValidator(maxFileSize, maxPixels int64, allowedTypes []string, logger *logging.Logger) *SecurityValidator {
	return &SecurityValidator{
		maxFileSize:  maxFileSize,
		maxPixels:    maxPixels,
		allowedTypes: allowedTypes,
		logger:       logger,
	}
}

// CheckDeclared rejects uploads whose declared content type or size is out of bounds.
func (v *SecurityValidator) CheckDeclared(contentType string, declaredSize int64) error {
	if !v.isTypeAllowed(contentType) {
		v.logger.WarnTag("图像", "拒绝不支持的类型: %q", contentType)
		return errors.New(errors.KindInvalidInput, "image.validate_type", msgInvalidType)
	}
	if declaredSize > v.maxFileSize {
		v.logger.WarnTag("图像", "拒绝超大文件: size=%d max=%d", declaredSize, v.maxFileSize)
		return v.tooLarge()
	}
	return nil
}

// ValidateBytes inspects the header of the raw payload without decoding the
// pixels. Images whose pixel count exceeds maxPixels are rejected here so the
// decoder never allocates the full bitmap.
func (v *SecurityValidator) ValidateBytes(raw []byte, contentType string) (ValidationResult, error) {
	if len(raw) == 0 {
		return ValidationResult{}, errors.Wrap(errors.KindInvalidInput, "image.validate_bytes", msgInvalid, fmt.Errorf("empty image payload"))
	}
	if int64(len(raw)) > v.maxFileSize {
		return ValidationResult{}, v.tooLarge()
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return ValidationResult{}, errors.Wrap(errors.KindInvalidInput, "image.decode_config", msgInvalid, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ValidationResult{}, errors.Wrap(errors.KindInvalidInput, "image.decode_config", msgInvalid,
			fmt.Errorf("empty dimensions %dx%d", cfg.Width, cfg.Height))
	}
	if total := int64(cfg.Width) * int64(cfg.Height); v.maxPixels > 0 && total > v.maxPixels {
		v.logger.WarnTag("图像", "拒绝像素过多的图片: %dx%d max_pixels=%d", cfg.Width, cfg.Height, v.maxPixels)
		return ValidationResult{}, errors.Wrap(errors.KindInvalidInput, "image.validate_pixels", msgInvalid,
			fmt.Errorf("pixel count exceeds limit: %d (max %d)", total, v.maxPixels))
	}

	if !v.signatureMatches(raw, contentType) {
		v.logger.WarnTag("图像", "文件签名与声明类型不一致: declared=%s actual=%s header=%x",
			contentType, format, raw[:min(len(raw), 8)])
	}

	return ValidationResult{
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		FileSize: int64(len(raw)),
	}, nil
}

func (v *SecurityValidator) tooLarge() error {
	return errors.New(errors.KindInvalidInput, "image.validate_size", fmt.Sprintf(msgTooLarge, humanSize(v.maxFileSize)))
}

func (v *SecurityValidator) isTypeAllowed(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return false
	}
	for _, allowed := range v.allowedTypes {
		if strings.ToLower(allowed) == contentType {
			return true
		}
	}
	return false
}

func (v *SecurityValidator) signatureMatches(raw []byte, contentType string) bool {
	signature, ok := imageSignatures[strings.ToLower(contentType)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

func humanSize(n int64) string {
	const mib = 1024 * 1024
	if n > 0 && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
