// Package viewer serves recorded episodes from Parquet batches over HTTP
// and streams live episodes over a websocket.
package viewer

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/render"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"action": func(a int32) string { return game.Action(a).String() },
}).ParseFS(templateFS, "templates/*.html"))

// Server holds shared state for the HTTP handlers.
type Server struct {
	roots   []string
	dbCache *DBCache
	hub     *Hub
	log     *slog.Logger
}

func NewServer(roots []string, hub *Hub, log *slog.Logger) *Server {
	return &Server{
		roots:   roots,
		dbCache: NewDBCache(roots, 30*time.Second, log),
		hub:     hub,
		log:     log,
	}
}

func (s *Server) Close() error {
	return s.dbCache.Close()
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/episodes/", s.handleEpisodePage)
	mux.HandleFunc("/live", s.handleLivePage)
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/episodes/", s.handleEpisode)
	mux.HandleFunc("/ws/live", s.hub.ServeWS)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.listEpisodes(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := episodeIDFromPath(r.URL.Path, "/api/episodes/")
	if !ok {
		http.Error(w, "bad episode id", http.StatusBadRequest)
		return
	}
	steps, err := s.episodeSteps(r, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(steps) == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, EpisodeResponse{EpisodeID: id, Steps: steps})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	resp, err := s.listEpisodes(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderHTML(w, "index.html", resp)
}

func (s *Server) handleEpisodePage(w http.ResponseWriter, r *http.Request) {
	id, ok := episodeIDFromPath(r.URL.Path, "/episodes/")
	if !ok {
		http.Error(w, "bad episode id", http.StatusBadRequest)
		return
	}
	steps, err := s.episodeSteps(r, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(steps) == 0 {
		http.NotFound(w, r)
		return
	}

	last := steps[len(steps)-1]
	board := (&render.ASCIIRenderer{}).String(render.Frame{
		State:   stepState(last),
		Step:    int(last.Step),
		Fitness: float64(last.Fitness),
		Label:   "final",
	})
	s.renderHTML(w, "episode.html", struct {
		EpisodeID  string
		FinalBoard string
		Steps      []Step
	}{id, board, steps})
}

func (s *Server) handleLivePage(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, "live.html", nil)
}

func (s *Server) listEpisodes(r *http.Request) (EpisodesResponse, error) {
	db, err := s.dbCache.Get()
	if err != nil {
		return EpisodesResponse{}, err
	}
	limit := parseIntQuery(r, "limit", 200)
	offset := parseIntQuery(r, "offset", 0)
	total, err := queryEpisodesTotal(r.Context(), db)
	if err != nil {
		return EpisodesResponse{}, err
	}
	episodes, err := queryEpisodes(r.Context(), db, limit, offset)
	if err != nil {
		return EpisodesResponse{}, err
	}
	return EpisodesResponse{Total: total, Episodes: episodes}, nil
}

func (s *Server) episodeSteps(r *http.Request, id string) ([]Step, error) {
	db, err := s.dbCache.Get()
	if err != nil {
		return nil, err
	}
	return queryEpisodeSteps(r.Context(), db, id)
}

func (s *Server) renderHTML(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("template failed", "template", name, "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "path", r.URL.Path, "err", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func episodeIDFromPath(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func stepState(s Step) *game.GameState {
	body := make([]game.Point, len(s.Body))
	for i, p := range s.Body {
		body[i] = game.Point{X: int(p.X), Y: int(p.Y)}
	}
	return &game.GameState{
		Size:      int(s.Size),
		Body:      body,
		Direction: game.Direction(s.Direction),
		Food:      game.Point{X: int(s.Food.X), Y: int(s.Food.Y)},
		Score:     int(s.Score),
		Terminal:  s.Terminal,
	}
}
