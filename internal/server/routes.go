package server

import (
	"net/http"

	"github.com/MeKo-Tech/huewheel/assets"
)

// Routes mounts the API on a new mux. history may be nil when no archive is
// configured.
func (s *PaletteService) Routes(history History) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/api/palette", withCORS(s.PaletteHandler()))
	mux.Handle("/api/wheel.png", withCORS(s.WheelHandler()))
	mux.Handle("/api/status", withCORS(s.StatusHandler()))
	if history != nil {
		mux.Handle("/api/palettes", withCORS(s.HistoryHandler(history)))
	}

	// Demo page
	mux.Handle("/", http.FileServer(http.FS(assets.Web())))
	return mux
}

// withCORS lets browser front ends on other origins upload images.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
