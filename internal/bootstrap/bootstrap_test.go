package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	platformconfig "formula-ocr-server/internal/platform/config"
	platformerrors "formula-ocr-server/internal/platform/errors"
)

func writeTestConfig(t *testing.T, driver string) string {
	t.Helper()
	return writeTestConfigWithUpstream(t, driver, "https://api.moonshot.cn/v1/chat/completions")
}

func writeTestConfigWithUpstream(t *testing.T, driver, upstream string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
server:
  ip: 127.0.0.1
  port: 18080
  static_dir: %[1]s/static
log:
  log_level: INFO
  log_dir: %[1]s/logs
  log_file: test.log
recognizer:
  url: %[3]s
  api_key: test-key
  default_model: test-vision
image:
  debug_dir: %[1]s/debug
history:
  driver: %[2]s
  sqlite:
    dsn: %[1]s/history.db
`, dir, driver, upstream)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testLoader() *platformconfig.Loader {
	return platformconfig.NewLoader().
		WithDotEnv(false).
		WithEnv(func(string) (string, bool) { return "", false })
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"history:init-store",
		"events:init-bus",
		"recognizer:init-client",
		"image:init-preprocessor",
	}
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitStepsRejectsUnsatisfiedDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Execute:   func(context.Context, *appState) error { return nil },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindBootstrap) {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}

func TestExecuteInitStepsWrapsUntypedErrors(t *testing.T) {
	steps := []initStep{
		{
			ID:      "storage",
			Kind:    platformerrors.KindStorage,
			Execute: func(context.Context, *appState) error { return fmt.Errorf("disk full") },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	if !platformerrors.IsKind(err, platformerrors.KindStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestExecuteInitGraph(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			state := &appState{options: Options{
				ConfigPath: writeTestConfig(t, driver),
				Loader:     testLoader(),
			}}
			defer state.close()

			if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
				t.Fatalf("executeInitSteps failed: %v", err)
			}
			if state.config == nil || state.logger == nil {
				t.Fatal("config/logger not initialised")
			}
			if state.historyStore == nil || state.bus == nil {
				t.Fatal("history/event bus not initialised")
			}
			if state.recognizer == nil || state.preprocessor == nil {
				t.Fatal("pipeline not initialised")
			}
			if state.observabilityShutdown == nil {
				t.Fatal("observability shutdown hook not set")
			}
			if driver == "sqlite" && state.db == nil {
				t.Fatal("sqlite handle not opened")
			}
		})
	}
}

func TestExecuteInitGraphStopsOnConfigError(t *testing.T) {
	state := &appState{options: Options{Loader: testLoader().WithPath(filepath.Join(t.TempDir(), "missing.yaml"))}}
	defer state.close()

	if err := executeInitSteps(context.Background(), InitGraph(), state); err == nil {
		t.Fatal("expected config error")
	}
	if state.logger != nil {
		t.Fatal("no step after config:load should have run")
	}
}

func TestBuildHandlerRoutes(t *testing.T) {
	state := &appState{options: Options{
		ConfigPath: writeTestConfig(t, "memory"),
		Loader:     testLoader(),
	}}
	defer state.close()

	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	handler, err := buildHandler(context.Background(), state)
	if err != nil {
		t.Fatalf("buildHandler: %v", err)
	}

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{http.MethodGet, "/openapi.json", http.StatusOK, "/recognize"},
		{http.MethodGet, "/docs", http.StatusOK, "api-reference"},
		{http.MethodGet, "/api/status", http.StatusOK, "default_model"},
		{http.MethodGet, "/api/recognitions", http.StatusOK, `"success":true`},
		{http.MethodGet, "/api/unknown", http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Fatalf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
		}
		if !strings.Contains(w.Body.String(), tt.wantBody) {
			t.Fatalf("%s %s: body %q missing %q", tt.method, tt.path, w.Body.String(), tt.wantBody)
		}
	}
}

func TestLogBootstrapGraphNilLogger(t *testing.T) {
	logBootstrapGraph(InitGraph(), nil)
}

func recognizeUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.Set(3, 3, color.Black)

	var raw bytes.Buffer
	if err := png.Encode(&raw, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="formula.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(raw.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, mw.FormDataContentType()
}

func TestStartHTTPServerShutdownCancelsRetryWait(t *testing.T) {
	upstreamHit := make(chan struct{}, 4)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case upstreamHit <- struct{}{}:
		default:
		}
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	state := &appState{options: Options{
		ConfigPath: writeTestConfigWithUpstream(t, "memory", upstream.URL),
		Loader:     testLoader(),
	}}
	defer state.close()

	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	state.config.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	srv, err := startHTTPServer(state, group, groupCtx)
	if err != nil {
		t.Fatalf("startHTTPServer: %v", err)
	}

	body, contentType := recognizeUpload(t)
	status := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+srv.Addr+"/api/recognize", contentType, body)
		if err != nil {
			status <- -1
			return
		}
		_ = resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-upstreamHit:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream was never called")
	}
	cancel()

	waitErr := make(chan error, 1)
	go func() { waitErr <- group.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("server group returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not drain within 5s; the retry wait was not cancelled")
	}

	select {
	case code := <-status:
		if code != http.StatusInternalServerError {
			t.Fatalf("in-flight request status = %d, want %d", code, http.StatusInternalServerError)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request did not complete after shutdown")
	}
}
