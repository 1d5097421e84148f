package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"formula-ocr-server/internal/domain/history/model"
	"formula-ocr-server/internal/domain/history/store"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

type listResponse struct {
	Success bool           `json:"success"`
	Data    []model.Record `json:"data"`
	Code    int            `json:"code"`
}

func newHistoryEngine(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemory(store.Config{Capacity: 10})
	for i, id := range []string{"a", "b", "c"} {
		_ = s.Save(context.Background(), model.Record{
			ID:        id,
			Model:     "m",
			Status:    model.StatusSuccess,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	engine := gin.New()
	NewService(s, nil).Register(context.Background(), engine.Group("/api"))
	return engine, s
}

func TestListRecognitions(t *testing.T) {
	engine, _ := newHistoryEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recognitions?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp listResponse
	if err := sonic.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Data) != 2 || resp.Data[0].ID != "c" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListRecognitionsRejectsBadLimit(t *testing.T) {
	engine, _ := newHistoryEngine(t)

	for _, q := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recognitions?limit="+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: status = %d", q, w.Code)
		}
	}
}

func TestGetRecognition(t *testing.T) {
	engine, _ := newHistoryEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recognitions/b", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recognitions/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
