package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"net/http"
	"time"

	"formula-ocr-server/internal/platform/errors"
	"formula-ocr-server/internal/platform/logging"
	"formula-ocr-server/internal/platform/observability"

	"golang.org/x/image/draw"
)

const (
	defaultMaxFileSize = 5 * 1024 * 1024
	defaultMaxWidth    = 800
	defaultQuality     = 90
	defaultMaxPixels   = 4096 * 4096
)

// Options configures the preprocessor.
type Options struct {
	MaxFileSize int64
	MaxWidth    int
	JPEGQuality int
	// MaxPixels caps width*height of the source image before decoding.
	MaxPixels    int64
	AllowedTypes []string
	// Debug receives a copy of every encoded image. Nil disables the copy.
	Debug  *DebugWriter
	Logger *logging.Logger
}

// Preprocessor validates uploads, bounds their width, flattens alpha and
// re-encodes them as base64 JPEG.
type Preprocessor struct {
	validator   *SecurityValidator
	maxFileSize int64
	maxWidth    int
	quality     int
	debug       *DebugWriter
	logger      *logging.Logger
}

func NewPreprocessor(opts Options) *Preprocessor {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = defaultMaxWidth
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = []string{"image/png", "image/jpeg"}
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}

	return &Preprocessor{
		validator:   NewSecurityValidator(opts.MaxFileSize, opts.MaxPixels, opts.AllowedTypes, opts.Logger),
		maxFileSize: opts.MaxFileSize,
		maxWidth:    opts.MaxWidth,
		quality:     opts.JPEGQuality,
		debug:       opts.Debug,
		logger:      opts.Logger,
	}
}

// Validate checks the declared attributes of an upload. Callers use it to
// reject a request before reading the body.
func (p *Preprocessor) Validate(contentType string, declaredSize int64) error {
	return p.validator.CheckDeclared(contentType, declaredSize)
}

// Process runs the full preprocessing pipeline for one upload.
func (p *Preprocessor) Process(ctx context.Context, input Input) (out *Output, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, end := observability.StartSpan(ctx, "image", "process")
	defer func() { end(err) }()

	if input.Reader == nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "image.process", msgInvalid, fmt.Errorf("image reader is required"))
	}
	if err := p.validator.CheckDeclared(input.ContentType, input.DeclaredSize); err != nil {
		return nil, err
	}

	raw, err := p.readBounded(input.Reader)
	if err != nil {
		return nil, err
	}

	validation, err := p.validator.ValidateBytes(raw, input.ContentType)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		p.logger.ErrorTag("图像", "图片解码失败: %v", err)
		return nil, errors.Wrap(errors.KindInvalidInput, "image.decode", msgInvalid, err)
	}
	p.logger.InfoTag("图像", "图片解码成功: format=%s size=%dx%d bytes=%d",
		validation.Format, validation.Width, validation.Height, validation.FileSize)

	normalized := Normalize(src, p.maxWidth)
	if normalized.Width != src.Bounds().Dx() {
		p.logger.DebugTag("图像", "缩放图片: %dx%d -> %dx%d",
			src.Bounds().Dx(), src.Bounds().Dy(), normalized.Width, normalized.Height)
	}

	encoded, err := EncodeJPEG(normalized.Image, p.quality)
	if err != nil {
		p.logger.ErrorTag("图像", "JPEG 编码失败: %v", err)
		return nil, &errors.Error{
			Kind:    errors.KindProcessing,
			Op:      "image.encode",
			Message: fmt.Sprintf("Failed to process image: %v", err),
			Cause:   err,
			Status:  http.StatusBadRequest,
		}
	}

	out = &Output{
		Base64:       base64.StdEncoding.EncodeToString(encoded),
		JPEG:         encoded,
		Width:        normalized.Width,
		Height:       normalized.Height,
		SourceWidth:  validation.Width,
		SourceHeight: validation.Height,
		SourceFormat: validation.Format,
		SourceBytes:  validation.FileSize,
	}

	if p.debug != nil {
		out.DebugPath = p.debug.Write(encoded)
	}

	observability.RecordImage(ctx, observability.ImageSample{
		Format:       validation.Format,
		SourceWidth:  validation.Width,
		SourceHeight: validation.Height,
		Downscaled:   normalized.Width != validation.Width,
		EncodedBytes: len(encoded),
	})
	return out, nil
}

func (p *Preprocessor) readBounded(r io.Reader) ([]byte, error) {
	limited := &io.LimitedReader{R: r, N: p.maxFileSize + 1}
	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "image.read", msgInvalid, err)
	}
	if int64(buf.Len()) > p.maxFileSize {
		return nil, p.validator.tooLarge()
	}
	return buf.Bytes(), nil
}

// Normalize bounds the width of src to maxWidth, preserving the aspect ratio
// with Catmull-Rom resampling, and composites the result over opaque white.
func Normalize(src image.Image, maxWidth int) Normalized {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	return Normalized{Image: dst, Width: w, Height: h}
}

// EncodeJPEG encodes an opaque bitmap as a baseline three-component JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// debugFilename is derived from the wall clock plus a short random suffix.
func debugFilename(now time.Time, suffix string) string {
	return fmt.Sprintf("debug_screenshot_%d_%s.jpg", now.UnixMilli(), suffix)
}
