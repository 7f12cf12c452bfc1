package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/joelkehle/ideafit/internal/insight"
	"github.com/joelkehle/ideafit/internal/report"
	"github.com/joelkehle/ideafit/internal/simulate"
	"github.com/joelkehle/ideafit/internal/store"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Store   store.Store
	Service *simulate.Service
	Adapter *insight.Adapter
	PDF     *report.PDFRenderer
	// Limiter guards the endpoints that reach the LLM. Nil disables the guard.
	Limiter     *rate.Limiter
	CORSOrigins []string
	AppName     string
	Now         func() time.Time
}

type Server struct {
	store   store.Store
	service *simulate.Service
	adapter *insight.Adapter
	pdf     *report.PDFRenderer
	limiter *rate.Limiter
	origins map[string]bool
	anyOrig bool
	appName string
	now     func() time.Time
}

func NewServer(d Deps) http.Handler {
	s := &Server{
		store:   d.Store,
		service: d.Service,
		adapter: d.Adapter,
		pdf:     d.PDF,
		limiter: d.Limiter,
		origins: map[string]bool{},
		appName: d.AppName,
		now:     d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pdf == nil {
		s.pdf = &report.PDFRenderer{}
	}
	for _, o := range d.CORSOrigins {
		if o == "*" {
			s.anyOrig = true
		}
		s.origins[o] = true
	}

	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/system/status", s.handleSystemStatus).Methods("GET", "OPTIONS")

	r.HandleFunc("/projects", s.handleListProjects).Methods("GET", "OPTIONS")
	r.HandleFunc("/projects", s.handleCreateProject).Methods("POST")

	r.HandleFunc("/ideas", s.handleListIdeas).Methods("GET", "OPTIONS")
	r.HandleFunc("/ideas", s.handleCreateIdea).Methods("POST")
	r.Handle("/ideas/score", s.limited(s.handleScore)).Methods("POST", "OPTIONS")
	r.HandleFunc("/ideas/{id}/reactions", s.handleListReactions).Methods("GET", "OPTIONS")
	r.Handle("/ideas/{id}/report", s.limited(s.handleReport)).Methods("GET", "OPTIONS")

	r.Handle("/simulate", s.limited(s.handleSimulate)).Methods("POST", "OPTIONS")

	r.HandleFunc("/personas", s.handleListPersonas).Methods("GET", "OPTIONS")
	r.HandleFunc("/personas", s.handleCreatePersona).Methods("POST")
	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.anyOrig || s.origins[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limited rejects with 429 once the inbound token bucket is empty.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.Method != http.MethodOptions && !s.limiter.Allow() {
			res := s.limiter.Reserve()
			wait := res.Delay()
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeDetail(w, http.StatusTooManyRequests, "Too many requests.")
			return
		}
		h(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status": "ok",
		"app":    s.appName,
		"pdf":    s.pdf.Available(),
	}
	if s.adapter != nil {
		payload["llm"] = s.adapter.Stats()
	}
	if s.limiter != nil {
		payload["inbound"] = map[string]any{
			"rps":    float64(s.limiter.Limit()),
			"burst":  s.limiter.Burst(),
			"tokens": math.Floor(s.limiter.Tokens()),
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps store errors onto their status; anything else is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := store.StatusOf(err)
	var se *store.Error
	if errors.As(err, &se) {
		writeDetail(w, status, se.Message)
		return
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeDetail(w, status, "Internal server error.")
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(blob))) == 0 {
		return errors.New("request body required")
	}
	return json.Unmarshal(blob, dst)
}
