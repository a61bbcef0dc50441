// Package main demonstrates wiring an eventpipeline.Pipeline end to end:
// load layered config, initialize structured logging, assemble the
// pipeline behind a toy HTTP-shaped EventHandler, and drain it cleanly
// on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	eventpipeline "github.com/riftflag/eventpipeline"
	"github.com/riftflag/eventpipeline/internal/batching"
	"github.com/riftflag/eventpipeline/internal/config"
	"github.com/riftflag/eventpipeline/internal/events"
	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/sink"
)

// impression is the caller's raw input shape: "project:visitor:kind".
type impression string

func convertImpression(item impression) (events.Event, bool) {
	parts := strings.SplitN(string(item), ":", 3)
	if len(parts) != 3 {
		return events.Event{}, false
	}
	return events.Event{
		ID:        string(item),
		Identity:  events.Identity{ProjectID: parts[0]},
		Visitor:   events.VisitorEntry{VisitorID: parts[1]},
		Kind:      parts[2],
		Timestamp: time.Now(),
	}, true
}

func buildRequest(group []events.Event) (events.Request, bool) {
	if len(group) == 0 {
		return events.Request{}, false
	}
	return events.Request{
		ID:     group[0].Identity.ProjectID,
		Method: "POST",
		URL:    "https://ingest.example.invalid/v1/events",
		Events: group,
	}, true
}

// stdoutHandler stands in for the real network sink; it treats every
// dispatch as opaque per the pipeline's Non-goals around wire I/O.
type stdoutHandler struct{}

func (stdoutHandler) Dispatch(req events.Request) error {
	fmt.Fprintf(os.Stdout, "dispatched project=%s events=%d\n", req.ID, len(req.Events))
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Msg("starting eventpipeline example")

	pipelineCfg := eventpipeline.Config[impression]{
		Convert:      convertImpression,
		EventFactory: buildRequest,
		Handler:      stdoutHandler{},
		OnException: func(req events.Request, err error) {
			logging.Warn().Str("request_id", req.ID).Err(err).Msg("dispatch failed")
		},
		Batching: batching.Config{
			MaxBatchSize:       cfg.Batching.MaxBatchSize,
			MaxBatchOpen:       cfg.Batching.MaxBatchOpen,
			MaxInflightBatches: cfg.Batching.MaxInflightBatches,
			Executor:           executorFromConfig(cfg.Batching),
		},
	}
	if cfg.Sink.CircuitBreakerEnabled {
		pipelineCfg.Breaker = sink.NewBreaker("example-sink", cfg.Sink.FailureThreshold, cfg.Sink.Cooldown)
	}

	pipeline, err := eventpipeline.New(pipelineCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to assemble pipeline")
	}
	if err := pipeline.Start(); err != nil {
		logging.Fatal().Err(err).Msg("failed to start pipeline")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		if !pipeline.Stop(cfg.Pipeline.StopTimeout) {
			logging.Warn().Msg("pipeline did not drain within the configured stop timeout")
		}
		os.Exit(0)
	}()

	pipeline.Process(impression("acme:visitor-1:impression"))
	pipeline.Process(impression("acme:visitor-2:conversion"))
	pipeline.Flush()

	logging.Info().Msg("pipeline running; send SIGINT/SIGTERM to stop")
	select {}
}

func executorFromConfig(cfg config.BatchingConfig) batching.Executor {
	if cfg.PoolWorkers <= 0 {
		return batching.GoroutineExecutor{}
	}
	return batching.NewPoolExecutor(cfg.PoolWorkers)
}
