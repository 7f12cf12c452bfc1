package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/joelkehle/ideafit/internal/model"
	"github.com/joelkehle/ideafit/internal/report"
	"github.com/joelkehle/ideafit/internal/store"
)

const (
	defaultReactionLimit = 20
	maxReactionLimit     = 50
	reportReactionLimit  = 10
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	project, err := s.store.CreateProject(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.store.ListIdeas(r.Context(), strings.TrimSpace(r.URL.Query().Get("projectId")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req ideaRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	in, err := req.validate()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	idea, err := s.store.CreateIdea(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

type scoreResponse struct {
	model.Score
	Factors  []model.Factor `json:"factors"`
	Reaction model.Reaction `json:"reaction"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if len(req.IdeaIDs) == 0 {
		writeDetail(w, http.StatusBadRequest, "ideaIds must not be empty.")
		return
	}
	scored, err := s.service.Score(r.Context(), req.IdeaIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(scored) == 0 {
		writeDetail(w, http.StatusNotFound, "No ideas scored.")
		return
	}
	out := make([]scoreResponse, 0, len(scored))
	for _, sc := range scored {
		out = append(out, scoreResponse{Score: sc.Score, Factors: sc.Contribution.Factors, Reaction: sc.Reaction})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListReactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := defaultReactionLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxReactionLimit {
			writeDetail(w, http.StatusBadRequest, "limit must be an integer between 1 and 50.")
			return
		}
		limit = n
	}
	reactions, err := s.store.ListReactions(r.Context(), id, limit)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Idea not found.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	switch {
	case len(req.IdeaIDs) == 0:
		writeDetail(w, http.StatusBadRequest, "At least one ideaId required.")
		return
	case len(req.IdeaIDs) > maxSimulationIdeas:
		writeDetail(w, http.StatusBadRequest, "At most 3 ideaIds per simulation.")
		return
	}
	results, err := s.service.Simulate(r.Context(), req.IdeaIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.store.ListPersonas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, personas)
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var req model.PersonaCreate
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if err := validatePersona(req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	persona, err := s.store.CreatePersona(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, persona)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "md"
	}
	switch format {
	case "md", "html":
	case "pdf":
		if !s.pdf.Available() {
			writeDetail(w, http.StatusServiceUnavailable, "PDF rendering is unavailable: no Chromium found.")
			return
		}
	default:
		writeDetail(w, http.StatusBadRequest, "format must be one of md, html, pdf.")
		return
	}

	scored, err := s.service.Assess(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Idea not found.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	reactions, err := s.store.ListReactions(r.Context(), id, reportReactionLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc := report.Document{
		Idea:         scored.Idea,
		Score:        scored.Score,
		Contribution: scored.Contribution,
		Reactions:    reactions,
		GeneratedAt:  s.now(),
	}

	switch format {
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.BuildMarkdown(doc)))
	case "html":
		out, err := report.RenderHTML(doc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
	case "pdf":
		pdf, err := s.pdf.Render(r.Context(), doc)
		if errors.Is(err, report.ErrChromiumUnavailable) {
			writeDetail(w, http.StatusServiceUnavailable, "PDF rendering is unavailable: no Chromium found.")
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="`+id+`.pdf"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}
