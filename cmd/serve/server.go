package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/rules"
)

// API request/response types

type InfoResponse struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Policy   string   `json:"policy"`
	Size     int      `json:"size"`
	Actions  []string `json:"actions"`
	Features []string `json:"features"`
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Board is a position in wire form. Body is head first.
type Board struct {
	Size      int     `json:"size"`
	Body      []Coord `json:"body"`
	Direction string  `json:"direction"`
	Food      Coord   `json:"food"`
}

// ActRequest carries either a board to encode or an already encoded
// feature vector. Board wins when both are set.
type ActRequest struct {
	Board    *Board    `json:"board,omitempty"`
	Features []float64 `json:"features,omitempty"`
}

type ActResponse struct {
	Action    string    `json:"action"`
	ActionID  int       `json:"action_id"`
	Direction string    `json:"direction,omitempty"` // heading after the action
	Features  []float64 `json:"features"`
	Latency   string    `json:"latency"`
}

type EpisodeResponse struct {
	Seed    int64   `json:"seed"`
	Fitness float64 `json:"fitness"`
	Steps   int     `json:"steps"`
	Score   int     `json:"score"`
	Length  int     `json:"length"`
	Reason  string  `json:"reason"`
}

// Server answers action queries for one policy.
type Server struct {
	name       string
	policy     harness.Policy
	env        rules.Config
	scoring    harness.Scoring
	actTimeout time.Duration
	log        *slog.Logger
}

func NewServer(name string, p harness.Policy, env rules.Config, scoring harness.Scoring, actTimeout time.Duration, log *slog.Logger) *Server {
	return &Server{
		name:       name,
		policy:     p,
		env:        env,
		scoring:    scoring,
		actTimeout: actTimeout,
		log:        log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/act", s.handleAct)
	mux.HandleFunc("/episode", s.handleEpisode)
	return mux
}

// handleIndex describes the policy and the encoding it expects.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	actions := make([]string, game.NumActions)
	for i := range actions {
		actions[i] = game.Action(i).String()
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:     "neatsnake",
		Version:  "1.0.0",
		Policy:   s.name,
		Size:     s.env.Size,
		Actions:  actions,
		Features: rules.FeatureNames[:],
	})
}

// handleAct returns the policy's action for one position.
func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	var req ActRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	feats, heading, err := decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actTimeout)
	defer cancel()
	action, err := s.policy.Act(ctx, feats)
	if err == nil && !action.Valid() {
		err = fmt.Errorf("%w: %d", game.ErrInvalidAction, int(action))
	}
	if err != nil {
		s.log.Error("policy failed", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}

	resp := ActResponse{
		Action:   action.String(),
		ActionID: int(action),
		Features: feats.Slice(),
	}
	if heading != nil {
		resp.Direction = heading.Turn(action).String()
	}
	elapsed := time.Since(start)
	resp.Latency = elapsed.String()
	s.log.Debug("act", "action", resp.Action, "elapsed", elapsed)
	writeJSON(w, http.StatusOK, resp)
}

// handleEpisode plays a full episode server side: GET /episode?seed=N.
func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	seed := int64(1)
	if v := r.URL.Query().Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "bad seed", http.StatusBadRequest)
			return
		}
		seed = n
	}

	env, err := rules.NewEnvironment(s.env, rand.New(rand.NewSource(seed)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res, err := harness.Evaluate(r.Context(), env, s.policy, harness.Options{Scoring: s.scoring})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("episode", "seed", seed, "fitness", res.Fitness, "steps", res.Steps, "reason", res.Reason)
	writeJSON(w, http.StatusOK, EpisodeResponse{
		Seed:    seed,
		Fitness: res.Fitness,
		Steps:   res.Steps,
		Score:   res.Score,
		Length:  res.Length,
		Reason:  string(res.Reason),
	})
}

func decodeRequest(req ActRequest) (rules.Features, *game.Direction, error) {
	if req.Board != nil {
		st, err := boardToState(req.Board)
		if err != nil {
			return rules.Features{}, nil, err
		}
		env, err := rules.Restore(st, nil)
		if err != nil {
			return rules.Features{}, nil, err
		}
		return env.State(), &st.Direction, nil
	}
	if len(req.Features) != rules.NumFeatures {
		return rules.Features{}, nil, fmt.Errorf("want a board or %d features, got %d features", rules.NumFeatures, len(req.Features))
	}
	var f rules.Features
	copy(f[:], req.Features)
	return f, nil, nil
}

// maxBoardSize bounds the grid a client may describe.
const maxBoardSize = 256

// maxRequestBytes bounds an /act body.
const maxRequestBytes = 4 << 20

func boardToState(b *Board) (*game.GameState, error) {
	if b.Size > maxBoardSize {
		return nil, fmt.Errorf("board size %d exceeds %d", b.Size, maxBoardSize)
	}
	dir, err := game.DirectionFromName(b.Direction)
	if err != nil {
		return nil, err
	}
	body := make([]game.Point, len(b.Body))
	for i, c := range b.Body {
		body[i] = game.Point{X: c.X, Y: c.Y}
	}
	return &game.GameState{
		Size:      b.Size,
		Body:      body,
		Direction: dir,
		Food:      game.Point{X: b.Food.X, Y: b.Food.Y},
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
