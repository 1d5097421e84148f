package status

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"time"

	"formula-ocr-server/internal/domain/history/store"
	"formula-ocr-server/internal/platform/logging"
	httptransport "formula-ocr-server/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Options configures the status service.
type Options struct {
	DefaultModel string
	BaseURL      string
	History      store.Store
	Logger       *logging.Logger
	StartedAt    time.Time
}

// Service reports the health of the running process.
type Service struct {
	opts Options
	proc *process.Process
}

// Report is the data payload of GET /api/status.
type Report struct {
	DefaultModel  string         `json:"default_model"`
	UpstreamHost  string         `json:"upstream_host"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	History       map[string]any `json:"history,omitempty"`
	Process       ProcessStats   `json:"process"`
}

// ProcessStats 进程资源占用
type ProcessStats struct {
	PID              int32   `json:"pid"`
	Goroutines       int     `json:"goroutines"`
	RSSBytes         uint64  `json:"rss_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	SystemMemPercent float64 `json:"system_mem_percent"`
}

func NewService(opts Options) *Service {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	svc := &Service{opts: opts}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		svc.proc = proc
	} else {
		opts.Logger.WarnTag("HTTP", "无法读取进程信息: %v", err)
	}
	return svc
}

// Register 注册状态路由
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) {
	router.GET("/status", s.handleStatus)
	s.opts.Logger.InfoTag("HTTP", "状态服务路由注册完成")
}

// handleStatus 服务运行状态
// @Summary 服务运行状态
// @Tags Status
// @Produce json
// @Success 200 {object} httptransport.APIResponse
// @Router /status [get]
func (s *Service) handleStatus(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, s.Collect(c.Request.Context()), "")
}

// Collect gathers the status report. Missing process metrics are left zero.
func (s *Service) Collect(ctx context.Context) Report {
	report := Report{
		DefaultModel:  s.opts.DefaultModel,
		UpstreamHost:  hostOf(s.opts.BaseURL),
		UptimeSeconds: int64(time.Since(s.opts.StartedAt).Seconds()),
		Process: ProcessStats{
			PID:        int32(os.Getpid()),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if s.opts.History != nil {
		if stats, err := s.opts.History.Stats(ctx); err == nil {
			report.History = stats
		} else {
			s.opts.Logger.WarnTag("历史", "读取历史统计失败: %v", err)
		}
	}

	if s.proc != nil {
		if info, err := s.proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
			report.Process.RSSBytes = info.RSS
		}
		if cpu, err := s.proc.CPUPercentWithContext(ctx); err == nil {
			report.Process.CPUPercent = cpu
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		report.Process.SystemMemPercent = vm.UsedPercent
	}

	return report
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
