package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"videoHighlights/config"
	"videoHighlights/core"
	"videoHighlights/retrieval"
	"videoHighlights/storage"
)

// VideoProcessor 处理单个视频，由 HighlightPipeline 实现
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, path string) (int64, []core.Highlight, error)
}

// Server 查询与视频管理 HTTP 接口
type Server struct {
	cfg       *config.Config
	chat      *retrieval.ChatService
	store     storage.Gateway
	processor VideoProcessor
	jobs      *jobTracker
	// slots 限制同时处理的视频数，排队中的任务保持 processing 状态
	slots chan struct{}
	// baseCtx 后台处理任务使用，服务关闭时取消
	baseCtx context.Context
}

func New(cfg *config.Config, chat *retrieval.ChatService, store storage.Gateway, processor VideoProcessor) *Server {
	workers := cfg.VideoWorkers
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:       cfg,
		chat:      chat,
		store:     store,
		processor: processor,
		jobs:      newJobTracker(),
		slots:     make(chan struct{}, workers),
		baseCtx:   context.Background(),
	}
}

// Router 注册路由并包上 CORS
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat/query", s.QueryHandler).Methods(http.MethodPost)
	api.HandleFunc("/videos", s.ListVideosHandler).Methods(http.MethodGet)
	api.HandleFunc("/videos/process", s.ProcessVideoHandler).Methods(http.MethodPost)
	api.HandleFunc("/videos/jobs/{job_id}", s.JobStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/videos/{id:[0-9]+}/highlights", s.VideoHighlightsHandler).Methods(http.MethodGet)
	api.HandleFunc("/videos/{id:[0-9]+}", s.DeleteVideoHandler).Methods(http.MethodDelete)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return cors(r)
}

// Run 启动 HTTP 服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.baseCtx = baseCtx

	srv := &http.Server{
		Addr:         ":" + strings.TrimPrefix(s.cfg.Port, ":"),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[server] shutdown signal received, draining requests...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("[server] stopped cleanly")
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	core.WriteJSON(w, status, map[string]string{"error": msg})
}
