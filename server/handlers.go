package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"videoHighlights/core"
	"videoHighlights/utils"
)

// QueryHandler POST /api/chat/query
func (s *Server) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	resp, err := s.chat.Query(r.Context(), req)
	switch {
	case errors.Is(err, core.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, core.ErrInvalidMaxResults):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("[server] query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error processing request")
		return
	}
	core.WriteJSON(w, http.StatusOK, resp)
}

// HealthHandler GET /health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.HasAnyEmbedding(r.Context()); err != nil {
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"store":     s.cfg.Store,
		"timestamp": time.Now().Unix(),
	})
}

// ListVideosHandler GET /api/videos
func (s *Server) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := s.store.ListVideos(r.Context())
	if err != nil {
		log.Printf("[server] list videos failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []core.Video{}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"videos": videos, "total": len(videos)})
}

// VideoHighlightsHandler GET /api/videos/{id}/highlights
func (s *Server) VideoHighlightsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := videoIDParam(w, r)
	if !ok {
		return
	}
	highlights, err := s.store.HighlightsByVideo(r.Context(), id)
	if errors.Is(err, core.ErrVideoNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("[server] highlights of video %d failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load highlights")
		return
	}
	if highlights == nil {
		highlights = []core.Highlight{}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"video_id": id, "highlights": highlights})
}

// DeleteVideoHandler DELETE /api/videos/{id}，高光随视频一起删除
func (s *Server) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := videoIDParam(w, r)
	if !ok {
		return
	}
	err := s.store.DeleteVideo(r.Context(), id)
	if errors.Is(err, core.ErrVideoNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("[server] delete video %d failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"status": "deleted", "video_id": id})
}

// ProcessVideoHandler POST /api/videos/process，后台处理，返回任务 id
func (s *Server) ProcessVideoHandler(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "video processor is not initialized")
		return
	}
	var req struct {
		VideoPath string `json:"video_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VideoPath == "" {
		writeError(w, http.StatusBadRequest, "video_path required")
		return
	}
	if !utils.FileExists(req.VideoPath) {
		writeError(w, http.StatusBadRequest, "video file not found: "+req.VideoPath)
		return
	}

	job := s.jobs.start(req.VideoPath)
	ctx := s.baseCtx
	go func() {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			s.jobs.finish(job.ID, 0, 0, ctx.Err())
			return
		}
		defer func() { <-s.slots }()

		videoID, highlights, err := s.processor.ProcessVideo(ctx, req.VideoPath)
		if err != nil {
			log.Printf("[server] job %s failed: %v", job.ID, err)
		}
		s.jobs.finish(job.ID, videoID, len(highlights), err)
	}()

	core.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"video_path": req.VideoPath,
	})
}

// JobStatusHandler GET /api/videos/jobs/{job_id}
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.get(mux.Vars(r)["job_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	core.WriteJSON(w, http.StatusOK, job)
}

func videoIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return 0, false
	}
	return id, true
}
