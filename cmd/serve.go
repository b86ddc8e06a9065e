package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/granada-guide/mapengine/internal/engine"
	"github.com/granada-guide/mapengine/internal/geo"
	"github.com/granada-guide/mapengine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API driving the map overlay",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng := buildEngine(cfg)
		defer eng.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(eng),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// viewportRequest is the wire shape of a settled map view.
type viewportRequest struct {
	Center struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"center"`
	Zoom   int           `json:"zoom"`
	Bounds boundsPayload `json:"bounds"`
}

type boundsPayload struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

func (b boundsPayload) toBox() geo.BoundingBox {
	return geo.BoundingBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLng: b.MinLng, MaxLng: b.MaxLng}
}

func newRouter(eng *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// A settled map view: movement has stopped.
	r.Post("/v1/viewport", func(w http.ResponseWriter, r *http.Request) {
		var req viewportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		eng.ObserveViewport(model.ViewportState{
			Center: geo.LatLng{Lat: req.Center.Lat, Lng: req.Center.Lng},
			Zoom:   req.Zoom,
			Bounds: req.Bounds.toBox(),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	// A raw bounds change while the map is still moving. Only the
	// saved-place refresh reacts to these.
	r.Post("/v1/bounds", func(w http.ResponseWriter, r *http.Request) {
		var req boundsPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		eng.BoundsChanged(req.toBox())
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := eng.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"savedPlaceMarkers": snap.SavedPlaceMarkers,
			"poiMarkers":        snap.POIMarkers,
			"cityStatus":        snap.CityStatus,
			"fetchInFlight":     snap.FetchInFlight,
		})
	})

	r.Get("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		results, err := eng.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			zap.L().Warn("search request failed", zap.Error(err))
			http.Error(w, `{"error":"search failed"}`, http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, results)
	})

	r.Get("/v1/address", func(w http.ResponseWriter, r *http.Request) {
		lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil {
			http.Error(w, `{"error":"lat and lng are required"}`, http.StatusBadRequest)
			return
		}
		addr, err := eng.ResolveAddress(r.Context(), lat, lng)
		if err != nil {
			zap.L().Warn("address lookup failed", zap.Error(err))
			http.Error(w, `{"error":"address lookup failed"}`, http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"address": addr})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
