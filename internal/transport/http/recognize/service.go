package recognize

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"formula-ocr-server/internal/domain/eventbus"
	domainimage "formula-ocr-server/internal/domain/image"
	"formula-ocr-server/internal/platform/errors"
	"formula-ocr-server/internal/platform/logging"
	httptransport "formula-ocr-server/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultMaxBodyBytes = 6 * 1024 * 1024

// Options configures the recognize service.
type Options struct {
	Preprocessor Preprocessor
	Recognizer   Recognizer
	// Publisher is optional; nil disables recognition events.
	Publisher    Publisher
	Logger       *logging.Logger
	DefaultModel string
	MaxBodyBytes int64
}

// Service 公式识别服务的HTTP传输层实现
type Service struct {
	preprocessor Preprocessor
	recognizer   Recognizer
	publisher    Publisher
	logger       *logging.Logger
	defaultModel string
	maxBodyBytes int64
}

// NewService 创建公式识别服务
func NewService(opts Options) (*Service, error) {
	if opts.Preprocessor == nil {
		return nil, errors.New(errors.KindConfig, "recognize.new", "image preprocessor is required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New(errors.KindConfig, "recognize.new", "recognizer is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Service{
		preprocessor: opts.Preprocessor,
		recognizer:   opts.Recognizer,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		defaultModel: strings.TrimSpace(opts.DefaultModel),
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Register 注册识别路由
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) {
	router.POST("/recognize", s.handleRecognize)
	s.logger.InfoTag("HTTP", "识别服务路由注册完成")
}

// handleRecognize 识别上传图片中的公式
// @Summary 公式识别
// @Description 上传 PNG/JPEG 图片，返回识别出的 LaTeX
// @Tags Recognition
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "图片文件"
// @Param model formData string false "模型名称"
// @Success 200 {object} RecognizeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recognize [post]
func (s *Service) handleRecognize(c *gin.Context) {
	start := time.Now()
	event := eventbus.RecognitionEventData{
		RequestID:  uuid.NewString(),
		OccurredAt: start,
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.fail(c, &event, start, errors.Wrap(errors.KindInvalidInput, "recognize.parse", "Request body too large", err))
			return
		}
		s.fail(c, &event, start, errors.Wrap(errors.KindInvalidInput, "recognize.parse", "file field is required", err))
		return
	}

	model := strings.TrimSpace(c.PostForm("model"))
	if model == "" {
		model = s.defaultModel
	}
	contentType := header.Header.Get("Content-Type")
	event.Model = model
	event.Filename = header.Filename
	event.ContentType = contentType

	s.logger.InfoTag("识别", "Received file: %s, type: %s, size: %d", header.Filename, contentType, header.Size)

	if err := s.preprocessor.Validate(contentType, header.Size); err != nil {
		s.fail(c, &event, start, err)
		return
	}
	if model == "" {
		s.fail(c, &event, start, errors.New(errors.KindInvalidInput, "recognize.model", "model field is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.fail(c, &event, start, errors.Wrap(errors.KindInvalidInput, "recognize.open", "failed to read upload", err))
		return
	}
	defer file.Close()

	out, err := s.preprocessor.Process(c.Request.Context(), domainimage.Input{
		Reader:       file,
		ContentType:  contentType,
		DeclaredSize: header.Size,
		Filename:     header.Filename,
	})
	if err != nil {
		s.fail(c, &event, start, err)
		return
	}
	event.DebugPath = out.DebugPath
	event.Width = out.Width
	event.Height = out.Height
	event.SourceBytes = out.SourceBytes

	result, err := s.recognizer.Recognize(c.Request.Context(), out.Base64, model)
	if result != nil {
		event.Attempts = result.Attempts
	}
	if err != nil {
		s.fail(c, &event, start, err)
		return
	}

	event.Latex = result.Latex
	event.HTTPStatus = http.StatusOK
	event.Duration = time.Since(start)
	s.publish(eventbus.EventRecognitionCompleted, event)

	c.JSON(http.StatusOK, RecognizeResponse{
		Latex:     result.Latex,
		DebugPath: out.DebugPath,
	})
}

func (s *Service) fail(c *gin.Context, event *eventbus.RecognitionEventData, start time.Time, err error) {
	status := StatusFor(err)
	detail := errors.Detail(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorTag("识别", "Recognition failed: %v", err)
	} else {
		s.logger.WarnTag("识别", "请求被拒绝: %v", err)
	}

	event.ErrorKind = string(errors.KindOf(err))
	event.ErrorDetail = detail
	event.HTTPStatus = status
	event.Duration = time.Since(start)
	s.publish(eventbus.EventRecognitionFailed, *event)

	_ = c.Error(err)
	httptransport.RespondDetail(c, status, detail)
}

func (s *Service) publish(topic string, event eventbus.RecognitionEventData) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishAsync(topic, event)
}

// StatusFor maps a pipeline error onto its HTTP status.
func StatusFor(err error) int {
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		return http.StatusInternalServerError
	}
	switch typed.Kind {
	case errors.KindInvalidInput:
		return http.StatusBadRequest
	case errors.KindRateLimited:
		return http.StatusTooManyRequests
	case errors.KindProcessing:
		if typed.Status != 0 {
			return typed.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
