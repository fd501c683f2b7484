// Package server exposes tree generation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/friggog/tree-gen/internal/config"
	"github.com/friggog/tree-gen/internal/export"
	"github.com/friggog/tree-gen/internal/generator"
	"github.com/friggog/tree-gen/internal/logging"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/preview"
)

// maxParamsBody bounds uploaded parameter sets.
const maxParamsBody = 1 << 20

type Server struct {
	cfg     *config.Config
	gen     *generator.Generator
	httpSrv *http.Server
	logger  *zap.Logger
	slots   chan struct{}
}

func New(cfg *config.Config, gen *generator.Generator, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		gen:    gen,
		logger: logging.OrNop(logger).Named("server"),
		slots:  make(chan struct{}, max(1, cfg.Server.MaxConcurrent)),
	}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /presets", s.handlePresets)
	mux.HandleFunc("GET /presets/{name}", s.handlePreset)
	mux.HandleFunc("GET /generate", s.handleGenerate)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Listen
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown incomplete", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, params.PresetNames())
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	p, err := params.Preset(r.PathValue("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

// handleGenerate builds a tree from a preset (GET ?preset=) or an uploaded
// parameter set (POST body, YAML or JSON) and returns it as json, obj or
// png.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	seed := s.cfg.Generation.Seed
	if v := q.Get("seed"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid seed parameter", http.StatusBadRequest)
			return
		}
		seed = parsed
	}

	format := q.Get("format")
	if format == "" {
		format = export.FormatJSON
	}
	switch format {
	case export.FormatJSON, export.FormatOBJ, "png":
	default:
		http.Error(w, "format must be one of json, obj, png", http.StatusBadRequest)
		return
	}

	size := s.cfg.Output.PreviewSize
	if v := q.Get("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 4096 {
			http.Error(w, "invalid size parameter", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	leaves := s.cfg.Output.Leaves
	if v := q.Get("leaves"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid leaves parameter", http.StatusBadRequest)
			return
		}
		leaves = parsed
	}

	p, status, err := s.requestParams(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	ctx := r.Context()
	if timeout := s.cfg.Generation.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		http.Error(w, "generation capacity exhausted", http.StatusServiceUnavailable)
		return
	}

	res, err := s.gen.Generate(ctx, p, seed)
	if err != nil {
		s.logger.Warn("generation failed", zap.String("tree", p.Name), zap.Uint64("seed", seed), zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	d := res.Descriptor
	w.Header().Set("X-Tree-Id", d.ID.String())
	w.Header().Set("X-Tree-Cached", strconv.FormatBool(res.Cached))
	w.Header().Set("Server-Timing", fmt.Sprintf("generate;dur=%.1f", float64(res.Elapsed)/float64(time.Millisecond)))

	switch format {
	case "png":
		w.Header().Set("Content-Type", "image/png")
		err = preview.Encode(w, d, preview.Options{Size: size})
	case export.FormatOBJ:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = export.WriteOBJ(w, d, export.OBJOptions{Foliage: leaves})
	default:
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, d)
	}
	if err != nil {
		s.logger.Warn("write response", zap.String("format", format), zap.Error(err))
	}
}

func (s *Server) requestParams(r *http.Request) (*params.ParameterSet, int, error) {
	if r.Method == http.MethodPost {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxParamsBody+1))
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
		}
		if len(data) > maxParamsBody {
			return nil, http.StatusRequestEntityTooLarge, errors.New("parameter set too large")
		}
		p, err := params.Decode(data)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if p.Name == "" {
			p.Name = "custom"
		}
		return p, http.StatusOK, nil
	}

	name := r.URL.Query().Get("preset")
	if name == "" {
		name = s.cfg.Generation.Preset
	}
	p, err := params.Preset(name)
	if err != nil {
		return nil, http.StatusNotFound, err
	}
	return p, http.StatusOK, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, params.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
