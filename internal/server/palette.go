// Package server exposes palette extraction over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/huewheel/internal/analysis"
	"github.com/MeKo-Tech/huewheel/internal/imageload"
	"github.com/MeKo-Tech/huewheel/internal/palettedb"
	"github.com/MeKo-Tech/huewheel/internal/pipeline"
)

// History lists archived palettes. *palettedb.Store implements it.
type History interface {
	List(ctx context.Context, limit int) ([]palettedb.Entry, error)
}

type PaletteConfig struct {
	// Defaults are used for parameters the request does not set.
	Defaults analysis.Params
	Load     imageload.Options
	Store    pipeline.Store
	// MaxUploadBytes limits the multipart body (default: 20 MiB).
	MaxUploadBytes int64
	// MaxClusters and MaxWheelSize bound the per-request parameters.
	MaxClusters   int
	MaxWheelSize  int
	MaxConcurrent int
	Timeout       time.Duration
	CacheControl  string
}

// PaletteService handles upload requests.
type PaletteService struct {
	logger *slog.Logger
	sem    chan struct{}
	cfg    PaletteConfig

	active    atomic.Int32
	total     atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
}

// Status is the JSON body of the status endpoint.
type Status struct {
	Active        int   `json:"active"`
	MaxConcurrent int   `json:"max_concurrent"`
	Total         int64 `json:"total"`
	Failed        int64 `json:"failed"`
	CacheHits     int64 `json:"cache_hits"`
}

// PaletteResponse is the JSON body of the palette endpoint.
type PaletteResponse struct {
	*pipeline.Output
	Clusters  int   `json:"clusters"`
	Seed      int64 `json:"seed"`
	WheelSize int   `json:"wheel_size"`
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func NewPaletteService(cfg PaletteConfig, logger *slog.Logger) (*PaletteService, error) {
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default parameters: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 16
	}
	if cfg.MaxWheelSize <= 0 {
		cfg.MaxWheelSize = 2000
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	return &PaletteService{
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Status returns request counters.
func (s *PaletteService) Status() Status {
	return Status{
		Active:        int(s.active.Load()),
		MaxConcurrent: s.cfg.MaxConcurrent,
		Total:         s.total.Load(),
		Failed:        s.failed.Load(),
		CacheHits:     s.cacheHits.Load(),
	}
}

// PaletteHandler serves POST /api/palette: the palette as JSON.
func (s *PaletteService) PaletteHandler() http.Handler {
	return s.handle(func(w http.ResponseWriter, out *pipeline.Output, p analysis.Params) {
		w.Header().Set("Content-Type", "application/json")
		resp := PaletteResponse{Output: out, Clusters: p.Clusters, Seed: p.Seed, WheelSize: p.WheelSize}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.log().Error("failed to encode palette", "error", err)
		}
	})
}

// WheelHandler serves POST /api/wheel.png: the wheel with centroid markers.
func (s *PaletteService) WheelHandler() http.Handler {
	return s.handle(func(w http.ResponseWriter, out *pipeline.Output, _ analysis.Params) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(out.WheelPNG)))
		if _, err := w.Write(out.WheelPNG); err != nil {
			s.log().Debug("failed to write wheel", "error", err)
		}
	})
}

// StatusHandler serves the request counters as JSON.
func (s *PaletteService) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
			s.log().Error("failed to encode status", "error", err)
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})
}

// HistoryHandler serves GET /api/palettes?limit=N from the archive.
func (s *PaletteService) HistoryHandler(h History) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		entries, err := h.List(r.Context(), limit)
		if err != nil {
			s.log().Error("failed to list palettes", "error", err)
			http.Error(w, "failed to list palettes", http.StatusInternalServerError)
			return
		}

		type item struct {
			Source       string            `json:"source"`
			Fingerprint  string            `json:"fingerprint"`
			Clusters     int               `json:"clusters"`
			Seed         int64             `json:"seed"`
			WheelSize    int               `json:"wheel_size"`
			VisibleCells int               `json:"visible_cells"`
			CreatedAt    time.Time         `json:"created_at"`
			Palette      []analysis.Swatch `json:"palette"`
		}
		items := make([]item, 0, len(entries))
		for _, e := range entries {
			items = append(items, item{
				Source:       e.Source,
				Fingerprint:  e.Fingerprint,
				Clusters:     e.Clusters,
				Seed:         e.Seed,
				WheelSize:    e.WheelSize,
				VisibleCells: e.VisibleCells,
				CreatedAt:    e.CreatedAt.UTC(),
				Palette:      e.Swatches,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(items); err != nil {
			s.log().Error("failed to encode history", "error", err)
		}
	})
}

type writeFunc func(w http.ResponseWriter, out *pipeline.Output, p analysis.Params)

func (s *PaletteService) handle(write writeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.total.Add(1)
		out, params, err := s.extract(w, r)
		if err != nil {
			s.failed.Add(1)
			var re *requestError
			if errors.As(err, &re) {
				http.Error(w, re.msg, re.status)
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				http.Error(w, "extraction timed out", http.StatusServiceUnavailable)
				return
			}
			s.log().Error("palette extraction failed", "error", err)
			http.Error(w, "palette extraction failed", http.StatusInternalServerError)
			return
		}
		if out.Cached {
			s.cacheHits.Add(1)
		}

		w.Header().Set("Cache-Control", s.cfg.CacheControl)
		write(w, out, params)
	})
}

func (s *PaletteService) extract(w http.ResponseWriter, r *http.Request) (*pipeline.Output, analysis.Params, error) {
	params, force, err := s.params(r)
	if err != nil {
		return nil, params, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, params, badRequest("invalid upload: %v", err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, params, badRequest("missing image field")
	}
	defer file.Close()

	img, err := imageload.Decode(file, s.cfg.Load)
	if err != nil {
		return nil, params, badRequest("invalid image: %v", err)
	}

	ex, err := pipeline.NewExtractor(pipeline.Config{
		Params: params,
		Load:   s.cfg.Load,
		Store:  s.cfg.Store,
		Logger: s.logger,
	})
	if err != nil {
		return nil, params, badRequest("%v", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, params, ctx.Err()
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	s.log().Debug("Extracting upload", "file", header.Filename, "size", header.Size, "k", params.Clusters)
	out, err := ex.ExtractImage(ctx, header.Filename, img.Pixels, force)
	return out, params, err
}

func (s *PaletteService) params(r *http.Request) (analysis.Params, bool, error) {
	p := s.cfg.Defaults
	q := r.URL.Query()

	if v := q.Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 || k > s.cfg.MaxClusters {
			return p, false, badRequest("k must be an integer in [1,%d]", s.cfg.MaxClusters)
		}
		p.Clusters = k
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, false, badRequest("seed must be an integer")
		}
		p.Seed = seed
	}
	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 2 || size > s.cfg.MaxWheelSize {
			return p, false, badRequest("size must be an integer in [2,%d]", s.cfg.MaxWheelSize)
		}
		p.WheelSize = size
	}

	force := false
	if v := q.Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, false, badRequest("force must be a boolean")
		}
		force = b
	}
	return p, force, nil
}

func (s *PaletteService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
