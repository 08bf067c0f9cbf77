// Package api exposes the host over HTTP: algo order definitions, previews, running instances
// and a websocket stream of notifications.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/host"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/rxtech-lab/argo-algo/internal/strategy"
	"go.uber.org/zap"
)

// Controller is the part of the host the API drives.
type Controller interface {
	Definitions() []*algo.Definition
	Definition(id string) (*algo.Definition, error)
	Preview(id string, args any) ([]types.Order, error)
	Instances() []algo.Summary
	Instance(gid int64) (algo.Summary, bool)
	StartAO(ctx context.Context, id string, args any) (int64, error)
	StopAO(ctx context.Context, gid int64) error
}

var (
	_ Controller    = (*host.Host)(nil)
	_ host.Notifier = (*Hub)(nil)
)

// DefinitionInfo describes a registered algo order.
type DefinitionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StartRequest starts an algo order.
type StartRequest struct {
	ID   string         `json:"id"`
	Args map[string]any `json:"args"`
}

type StartResponse struct {
	GID int64 `json:"gid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type Server struct {
	ctrl       Controller
	hub        *Hub
	log        *logger.Logger
	router     *mux.Router
	httpServer *http.Server
	listener   net.Listener
}

func NewServer(ctrl Controller, hub *Hub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Server{
		ctrl:       ctrl,
		hub:        hub,
		log:        log,
		router:     mux.NewRouter(),
		httpServer: nil,
		listener:   nil,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/algos", s.handleListAlgos).Methods(http.MethodGet)
	api.HandleFunc("/algos/{id}/schema", s.handleSchema).Methods(http.MethodGet)
	api.HandleFunc("/algos/{id}/preview", s.handlePreview).Methods(http.MethodPost)

	api.HandleFunc("/instances", s.handleListInstances).Methods(http.MethodGet)
	api.HandleFunc("/instances", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/instances/{gid:[0-9]+}", s.handleGetInstance).Methods(http.MethodGet)
	api.HandleFunc("/instances/{gid:[0-9]+}", s.handleStop).Methods(http.MethodDelete)

	if s.hub != nil {
		s.router.Handle("/ws", s.hub)
	}

	s.router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on address and serves in the background.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", address)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", zap.Error(err))
		}
	}()

	s.log.Info("api server listening", zap.String("address", listener.Addr().String()))

	return nil
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Shutdown disconnects websocket clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListAlgos(w http.ResponseWriter, _ *http.Request) {
	defs := s.ctrl.Definitions()

	out := make([]DefinitionInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, DefinitionInfo{ID: def.ID, Name: def.Name})
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	def, err := s.ctrl.Definition(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)

		return
	}

	schema, err := strategy.Schema(def)
	if err != nil {
		s.respondError(w, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(schema))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		s.respondError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	orders, err := s.ctrl.Preview(mux.Vars(r)["id"], args)
	if err != nil {
		s.respondError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Instances())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	gid, err := s.ctrl.StartAO(r.Context(), req.ID, req.Args)
	if err != nil {
		s.respondError(w, err)

		return
	}

	s.log.Info("algo order started over api", zap.String("algo", req.ID), zap.Int64("gid", gid))
	respondJSON(w, http.StatusCreated, StartResponse{GID: gid})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		s.respondError(w, err)

		return
	}

	summary, ok := s.ctrl.Instance(gid)
	if !ok {
		s.respondError(w, errors.Newf(errors.ErrCodeInstanceNotFound, "algo order %d not found", gid))

		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		s.respondError(w, err)

		return
	}

	if err := s.ctrl.StopAO(r.Context(), gid); err != nil {
		s.respondError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func parseGID(r *http.Request) (int64, error) {
	gid, err := strconv.ParseInt(mux.Vars(r)["gid"], 10, 64)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid gid", err)
	}

	return gid, nil
}

// statusOf maps an error code to an HTTP status.
func statusOf(err error) int {
	switch code := errors.GetCode(err); {
	case errors.IsValidationError(err):
		return http.StatusBadRequest
	case code == errors.ErrCodeAlgoNotFound, code == errors.ErrCodeInstanceNotFound:
		return http.StatusNotFound
	case code == errors.ErrCodeHostClosed:
		return http.StatusServiceUnavailable
	case errors.IsExchangeError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Warn("api request failed", zap.Error(err))
	}

	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: int(errors.GetCode(err))})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
