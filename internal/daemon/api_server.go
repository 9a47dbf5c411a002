package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"snapsync/internal/api"
	"snapsync/internal/config"
	"snapsync/internal/logging"
	"snapsync/internal/uploader"
)

// maxUploadBytes bounds a single enqueue request body.
const maxUploadBytes = 32 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/queue", authMiddleware(token, srv.handleQueue))
	mux.HandleFunc("/api/enqueue", authMiddleware(token, srv.handleEnqueue))
	mux.HandleFunc("/api/drain", authMiddleware(token, srv.handleDrain))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// address reports the bound listen address, useful when bind was :0.
func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:     status.Running,
		PID:         status.PID,
		Reachable:   status.Reachable,
		Draining:    status.Draining,
		QueueLength: status.QueueLength,
		Totals: api.Totals{
			Produced:  status.Totals.Produced,
			Delivered: status.Totals.Delivered,
		},
		Endpoint:     status.Endpoint,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	items, err := s.daemon.ListQueue(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wire := make([]api.QueueItem, 0, len(items))
	for _, item := range items {
		wire = append(wire, api.QueueItem{
			ID:        item.ID,
			Lat:       item.LocationLat,
			Lon:       item.LocationLon,
			CreatedAt: item.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: wire})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing photo part")
		return
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read photo part")
		return
	}
	if len(payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "photo part is empty")
		return
	}

	loc, err := parseLocation(r.FormValue("lat"), r.FormValue("lon"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.daemon.Enqueue(r.Context(), payload, loc)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	queued := 0
	if count, err := s.daemon.store.Len(r.Context()); err == nil {
		queued = count
	}
	s.writeJSON(w, http.StatusAccepted, api.EnqueueResponse{ID: id, Queued: queued})
}

func (s *apiServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reachable := s.daemon.monitor.Reachable()
	go s.daemon.Drain(context.WithoutCancel(r.Context()))
	s.writeJSON(w, http.StatusAccepted, api.DrainResponse{Started: true, Reachable: reachable})
}

// parseLocation validates the optional lat/lon pair. Both or neither must be
// present.
func parseLocation(latValue, lonValue string) (*uploader.Location, error) {
	latValue = strings.TrimSpace(latValue)
	lonValue = strings.TrimSpace(lonValue)
	if latValue == "" && lonValue == "" {
		return nil, nil
	}
	if latValue == "" || lonValue == "" {
		return nil, errors.New("lat and lon must be provided together")
	}
	lat, err := strconv.ParseFloat(latValue, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat %q", latValue)
	}
	lon, err := strconv.ParseFloat(lonValue, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon %q", lonValue)
	}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("lat %v out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("lon %v out of range", lon)
	}
	return &uploader.Location{Lat: lat, Lon: lon}, nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
