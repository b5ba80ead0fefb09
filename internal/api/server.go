// Package api exposes the HTTP surface of the presence service: the latest
// target report, run statistics, live tuning, and recently persisted targets.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/pipeline"
	"github.com/banshee-data/presence.report/internal/serialmux"
	"github.com/banshee-data/presence.report/internal/track"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	p  *pipeline.Pipeline
	m  serialmux.SerialMuxInterface
	db *db.DB

	tuningMu sync.Mutex
	tuning   *config.TuningConfig
}

// NewServer wires the API over a running pipeline. mux and db may be nil in
// tests; the handlers that need them report 503 instead of panicking.
func NewServer(p *pipeline.Pipeline, m serialmux.SerialMuxInterface, database *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		p:      p,
		m:      m,
		db:     database,
		tuning: tuning,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/reset", s.resetStats)
	mux.HandleFunc("/api/tuning", s.tuningHandler)
	mux.HandleFunc("/api/targets/recent", s.listRecentTargets)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Presence Server!"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// showReport returns the most recently emitted target report.
func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	report, ok := s.p.LatestReport()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "No report emitted yet")
		return
	}
	json.NewEncoder(w).Encode(report)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	valid, dropped := s.p.Stats().Counts()
	json.NewEncoder(w).Encode(map[string]any{
		"valid_frames":   valid,
		"dropped_frames": dropped,
		"success_rate":   s.p.Stats().SuccessRate(),
	})
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.p.Stats().Reset()
	io.WriteString(w, "Stats reset")
}

// tuningHandler serves the current tuning document on GET and merges a
// partial update on POST. A successful POST applies the merged config to the
// live pipeline and, when the target mode changed, reconfigures the sensor.
func (s *Server) tuningHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.tuningMu.Lock()
		current := s.tuning
		s.tuningMu.Unlock()
		json.NewEncoder(w).Encode(current)
	case http.MethodPost:
		update := config.EmptyTuningConfig()
		if err := json.NewDecoder(r.Body).Decode(update); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tuning JSON: %v", err))
			return
		}
		if err := update.Validate(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid tuning: %v", err))
			return
		}

		s.tuningMu.Lock()
		merged := s.tuning.Merge(update)
		modeChanged := merged.GetMultiTarget() != s.tuning.GetMultiTarget()
		s.tuning = merged
		s.tuningMu.Unlock()
		s.applyTuning(merged)

		if modeChanged && s.m != nil {
			if err := s.m.Initialize(merged.GetMultiTarget()); err != nil {
				s.writeJSONError(w, http.StatusInternalServerError,
					fmt.Sprintf("Tuning applied but sensor mode switch failed: %v", err))
				return
			}
		}
		json.NewEncoder(w).Encode(merged)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// applyTuning pushes a tuning document into the running pipeline and tracker.
func (s *Server) applyTuning(cfg *config.TuningConfig) {
	mode := track.ModeSingleTarget
	if cfg.GetMultiTarget() {
		mode = track.ModeMultiTarget
	}
	s.p.SetOptions(pipeline.Options{
		Mode:              mode,
		MaxFramesPerCycle: cfg.GetMaxFramesPerCycle(),
		OutputInterval:    cfg.GetOutputInterval(),
		FrameTimeout:      cfg.GetFrameTimeout(),
	})
	s.p.Tracker().SetConfig(track.Config{
		MinDistanceM: cfg.GetMinDistanceM(),
		MinSpeed:     cfg.GetMinSpeed(),
		Smoothing:    cfg.GetEnableFiltering(),
		AngleEnabled: cfg.GetEnableAngle(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	})
}

func (s *Server) listRecentTargets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No database configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	targets, err := s.db.RecentTargets(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve targets: %v", err))
		return
	}
	json.NewEncoder(w).Encode(targets)
}

// sendCommandHandler writes a raw hex-encoded command to the sensor. Mostly
// useful for bench debugging; normal mode switches go through /api/tuning.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.m == nil {
		http.Error(w, "No sensor attached", http.StatusServiceUnavailable)
		return
	}

	command := r.FormValue("command")
	raw, err := decodeHexCommand(command)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid command: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(raw); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
