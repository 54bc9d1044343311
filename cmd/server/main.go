// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Command server runs the Kestrel analytics service: the session manager,
// the WebSocket hub, and the HTTP control API under one supervisor tree.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/behavior"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/engine"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/replay"
	"github.com/kestrelsec/kestrel/internal/store"
	"github.com/kestrelsec/kestrel/internal/vision"
	"github.com/kestrelsec/kestrel/internal/websocket"
	"github.com/kestrelsec/kestrel/internal/zone"

	"github.com/kestrelsec/kestrel/internal/api"
)

var version = "dev"

func main() {
	if err := run(); err != nil && err != context.Canceled {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	var (
		replayDir   = flag.String("replay-dir", "", "directory of JSONL capture files, one <source-id>.jsonl per source")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("kestrel", version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging.ToLogging())
	logging.Info().Str("version", version).Msg("kestrel starting")

	zones, err := zone.LoadFile(cfg.Zones.Path)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	engineCfg := engine.Config{
		Behavior: behavior.Config{LoiteringThreshold: cfg.Engine.LoiteringThreshold},
		Dispatch: dispatch.Config{
			AlertThreshold:    cfg.Engine.RiskAlertThreshold,
			CriticalThreshold: cfg.Engine.CriticalAlertThreshold,
		},
		MaxFPS: cfg.Engine.MaxFPS,
	}

	manager := engine.NewManager(engineCfg, zones, pipelineFactory(*replayDir))
	manager.RegisterNotifier(dispatch.LogNotifier{})
	if cfg.Notify.Webhook.Enabled {
		manager.RegisterNotifier(dispatch.NewWebhookNotifier(cfg.Notify.Webhook))
	}

	hub := websocket.NewHub()
	manager.SetBroadcaster(hub)

	var incidents *store.IncidentStore
	if cfg.Storage.Path != "" {
		retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
		incidents, err = store.Open(cfg.Storage.Path, retention)
		if err != nil {
			return fmt.Errorf("open incident store: %w", err)
		}
		defer func() {
			if err := incidents.Close(); err != nil {
				logging.Error().Err(err).Msg("failed to close incident store")
			}
		}()
		manager.SetIncidentStore(incidents)
	}

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(cfg.Auth)
	} else {
		logging.Warn().Msg("authentication disabled, control API is open")
	}

	var incidentReader api.IncidentReader
	if incidents != nil {
		incidentReader = incidents
	}
	server := api.NewServer(cfg.Server, manager, authSvc, incidentReader, hub)

	root := suture.New("kestrel", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Interface("details", e.Map()).Msg(e.String())
		},
	})
	root.Add(hub)
	root.Add(manager)
	root.Add(server)
	if incidents != nil {
		root.Add(incidents)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = root.Serve(ctx)
	logging.Info().Msg("kestrel stopped")
	return err
}

// pipelineFactory builds the perception pipeline for a source. With a replay
// directory, sources are JSONL captures named <source-id>.jsonl; the capture
// provides all three stages. Live camera ingestion plugs in here behind the
// same interfaces.
func pipelineFactory(replayDir string) engine.PipelineFactory {
	return func(_ context.Context, sourceID string) (engine.Pipeline, error) {
		if replayDir == "" {
			return engine.Pipeline{}, fmt.Errorf("no frame input configured for source %s (set -replay-dir)", sourceID)
		}
		path := fmt.Sprintf("%s/%s.jsonl", replayDir, sourceID)
		if _, err := os.Stat(path); err != nil {
			return engine.Pipeline{}, fmt.Errorf("capture for source %s: %w", sourceID, err)
		}
		rp, err := replay.Open(path)
		if err != nil {
			return engine.Pipeline{}, err
		}
		source, detector, _ := rp.Pipeline()
		// Captures without recorded track assignments fall back to the
		// centroid tracker, which rebuilds identities from detections.
		var tracker vision.Tracker = rp
		if !captureHasTracks(path) {
			tracker = vision.NewCentroidTracker(0, 0)
		}
		return engine.Pipeline{Source: source, Detector: detector, Tracker: tracker}, nil
	}
}

// captureHasTracks peeks at the first record of a capture for a recorded
// track assignment.
func captureHasTracks(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return bytes.Contains(line, []byte(`"track_id"`))
	}
	return false
}
