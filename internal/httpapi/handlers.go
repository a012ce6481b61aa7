package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/mythos-studio/internal/cache"
	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/ratelimit"
	"github.com/MimeLyc/mythos-studio/internal/studio"
	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// UserHeader carries the caller identity used for quota accounting when the
// server trusts proxy headers.
const UserHeader = "X-User-ID"

type createVideoRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if err := studio.ValidateTopic(topic); err != nil {
		writeStudioError(w, err)
		return
	}

	userID := requestIdentity(r, s.trustProxy)
	var quota *ratelimit.Status
	if s.limiter != nil {
		status, err := s.limiter.CheckLimit(r.Context(), s.limiter.UserKey(userID))
		if err != nil {
			writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to check quota", err))
			return
		}
		if !status.Allowed {
			quotaErr := studio.NewErrorWithCause(studio.ErrQuota, "daily video limit reached", ratelimit.ErrLimitReached)
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":  quotaErr.Error(),
				"advice": studio.Advice(quotaErr),
				"quota":  status,
			})
			return
		}
		quota = &status
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    "api",
		DedupeKey: jobs.DedupeKey(userID, topic),
		Payload: jobs.JobPayload{
			Topic:  topic,
			UserID: userID,
		},
	})
	code := http.StatusAccepted
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
		"quota":   quota,
	})
}

// handleVideoFile serves /api/videos/{job id} once the job has succeeded.
// ?format=srt returns the caption sidecar instead.
func (s *Server) handleVideoFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID, ok := pathID(r.URL.Path, "/api/videos/")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusSuccess || job.Result == nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "video is not ready",
			"status": job.Status,
		})
		return
	}

	path, contentType := job.Result.VideoPath, "video/mp4"
	if r.URL.Query().Get("format") == "srt" {
		if job.Result.CaptionsPath == "" {
			writeError(w, http.StatusNotFound, "job has no captions")
			return
		}
		path, contentType = job.Result.CaptionsPath, "application/x-subrip"
	}
	if !file.Exists(path) {
		writeError(w, http.StatusGone, "file is no longer available")
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, path)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	list := s.queue.List()
	if status := jobs.Status(r.URL.Query().Get("status")); status != "" {
		filtered := make([]*jobs.VideoJob, 0, len(list))
		for _, job := range list {
			if job.Status == status {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID, ok := pathID(r.URL.Path, "/api/jobs/")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}
	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.limiter == nil {
		writeError(w, http.StatusNotImplemented, "quota is not configured")
		return
	}

	status, err := s.limiter.CheckLimit(r.Context(), s.limiter.UserKey(requestIdentity(r, s.trustProxy)))
	if err != nil {
		writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to check quota", err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type statsResponse struct {
	Usage      *ratelimit.Stats `json:"usage,omitempty"`
	MaxPerDay  int              `json:"max_per_day,omitempty"`
	Cache      *cache.Stats     `json:"cache,omitempty"`
	ActiveJobs int              `json:"active_jobs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ret := statsResponse{ActiveJobs: s.queue.Active()}
	if s.limiter != nil {
		usage, err := s.limiter.Stats(r.Context())
		if err != nil {
			writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to load usage", err))
			return
		}
		ret.Usage = &usage
		ret.MaxPerDay = s.limiter.MaxPerDay()
	}
	if s.blobs != nil {
		blobs, err := s.blobs.Stats()
		if err != nil {
			writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to scan cache", err))
			return
		}
		ret.Cache = &blobs
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeError(w, http.StatusNotImplemented, "cache is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		stats, err := s.blobs.Stats()
		if err != nil {
			writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to scan cache", err))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case http.MethodDelete:
		if err := s.blobs.Clear(); err != nil {
			writeStudioError(w, studio.NewErrorWithCause(studio.ErrStorage, "failed to clear cache", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.schedule == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.schedule.Status())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// requestIdentity returns the client address. Headers are client controlled,
// so the user header and X-Forwarded-For are consulted only when trustHeaders
// is set.
func requestIdentity(r *http.Request, trustHeaders bool) string {
	if trustHeaders {
		if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
			return id
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func pathID(p, prefix string) (string, bool) {
	id := strings.Trim(strings.TrimPrefix(p, prefix), "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func statusFor(err error) int {
	var se *studio.StudioError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Type {
	case studio.ErrValidation:
		return http.StatusBadRequest
	case studio.ErrQuota:
		return http.StatusTooManyRequests
	case studio.ErrScript, studio.ErrProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeStudioError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"advice": studio.Advice(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
