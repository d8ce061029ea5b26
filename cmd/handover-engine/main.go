package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/handover-engine/core"
	"github.com/signalsfoundry/handover-engine/engine"
	"github.com/signalsfoundry/handover-engine/internal/api"
	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/internal/observability"
	"github.com/signalsfoundry/handover-engine/orbit"
	"github.com/signalsfoundry/handover-engine/timectrl"
)

// scenario describes the constellation and pairs the engine supervises.
type scenario struct {
	Satellites []struct {
		ID   string `json:"id"`
		TLE1 string `json:"tle1"`
		TLE2 string `json:"tle2"`
	} `json:"satellites"`
	Terminals []struct {
		ID     string  `json:"id"`
		LatDeg float64 `json:"lat_deg"`
		LonDeg float64 `json:"lon_deg"`
		AltKm  float64 `json:"alt_km"`
	} `json:"terminals"`
	Pairs []struct {
		UEID               string   `json:"ue_id"`
		ServingSatelliteID string   `json:"serving_satellite_id"`
		Candidates         []string `json:"candidates"`
	} `json:"pairs"`
}

func main() {
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for the API and /metrics")
	scenarioPath := flag.String("scenario", "configs/scenario.json", "Path to a JSON scenario file")
	interval := flag.Duration("observation-interval", time.Second, "pair worker observation cadence")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	scn, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
		os.Exit(1)
	}

	provider := orbit.NewSGP4Provider(orbit.DefaultRadioConfig(), log)
	for _, sat := range scn.Satellites {
		provider.AddSatellite(sat.ID, sat.TLE1, sat.TLE2)
	}
	for _, term := range scn.Terminals {
		provider.AddTerminal(term.ID, term.LatDeg, term.LonDeg, term.AltKm)
	}

	cfg := core.DefaultConfig()
	cfg.ObservationInterval = *interval

	syncReg := core.NewSyncPointRegistry(log)
	history := core.NewPredictionHistory(0)
	predictor := core.NewAccessTimePredictor(cfg.Predictor, log)
	coord := core.NewDecisionCoordinator(cfg, provider, predictor, syncReg, history, collector, log)

	eng, err := engine.New(cfg, provider, timectrl.SystemClock{}, coord, engine.NewDecisionFeed(), collector, log)
	if err != nil {
		log.Error(ctx, "failed to construct engine", logging.String("error", err.Error()))
		os.Exit(1)
	}

	for _, p := range scn.Pairs {
		pair := engine.Pair{
			UEID:               p.UEID,
			ServingSatelliteID: p.ServingSatelliteID,
			Candidates:         p.Candidates,
		}
		if err := eng.StartPair(pair); err != nil {
			log.Error(ctx, "failed to start pair",
				logging.String("ue_id", p.UEID),
				logging.String("serving", p.ServingSatelliteID),
				logging.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv := api.NewServer(api.Config{
		Addr:           *httpAddr,
		Engine:         eng,
		History:        history,
		SyncRegistry:   syncReg,
		MetricsHandler: collector.Handler(),
		Logger:         log,
	})

	go func() {
		if err := srv.Listen(); err != nil {
			log.Error(ctx, "api server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Warn(ctx, "api shutdown failed", logging.String("error", err.Error()))
	}
	eng.Close()
}

func loadScenario(path string) (scenario, error) {
	var scn scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return scn, err
	}
	if err := json.Unmarshal(data, &scn); err != nil {
		return scn, err
	}
	return scn, nil
}
