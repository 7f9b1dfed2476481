package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/facescan/go/internal/admin"
	"github.com/mcdev12/facescan/go/internal/capture"
	"github.com/mcdev12/facescan/go/internal/config"
	"github.com/mcdev12/facescan/go/internal/kiosk"
	"github.com/mcdev12/facescan/go/internal/relay/client"
	"github.com/mcdev12/facescan/go/internal/relay/gateway"
)

func relayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRelay()
			if err != nil {
				return err
			}
			return relayRun(cfg)
		},
	}
}

func relayRun(cfg config.RelayConfig) error {
	ctx, stop := signalContext()
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.PingInterval = cfg.PingInterval
	gatewayConfig.ConnectionConfig.ReadTimeout = cfg.ReadTimeout
	gatewayConfig.ConnectionConfig.WriteTimeout = cfg.WriteTimeout
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.MaxMessageSize
	gatewayConfig.ConnectionConfig.SendBufferSize = cfg.SendBuffer
	gatewayConfig.PromRegistry = registry

	mirror, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}

	relay, err := gateway.NewService(ctx, gatewayConfig, mirror)
	if err != nil {
		if mirror != nil {
			mirror.Close()
		}
		return err
	}

	log.Info().
		Str("port", cfg.Port).
		Bool("mirror", mirror != nil).
		Msg("starting relay")

	mux := http.NewServeMux()
	relay.RegisterRoutes(mux)
	setupMetrics(mux, registry)
	server := setupServer(cfg.Port, mux)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay service failed")
		}
	}()

	err = serve(ctx, "relay", server)
	stop()
	wg.Wait()

	log.Info().Msg("relay shutdown complete")
	return err
}

func adminCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "admin",
		Short: "Run the admin publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAdmin()
			if err != nil {
				return err
			}
			return adminRun(cfg)
		},
	}
}

func adminRun(cfg config.AdminConfig) error {
	ctx, stop := signalContext()
	defer stop()

	clock := clockwork.NewRealClock()
	relayClient := client.New(cfg.RelayURL, client.DefaultOptions())
	session := admin.NewSession(relayClient, capture.NewRequestCapturer(cfg.CaptureSamples, clock), clock)

	log.Info().
		Str("port", cfg.Port).
		Str("relay_url", cfg.RelayURL).
		Msg("starting admin publisher")

	mux := http.NewServeMux()
	admin.NewHandler(session).RegisterRoutes(mux)
	server := setupServer(cfg.Port, mux)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relayClient.Run(ctx, session.Connect, session.HandleMessage)
	}()

	err := serve(ctx, "admin", server)
	stop()
	wg.Wait()

	log.Info().Msg("admin shutdown complete")
	return err
}

func kioskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kiosk",
		Short: "Run a face scan kiosk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadKiosk()
			if err != nil {
				return err
			}
			return kioskRun(cfg)
		},
	}
}

func kioskRun(cfg config.KioskConfig) error {
	ctx, stop := signalContext()
	defer stop()

	settings, err := config.LoadWorkSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := kiosk.OpenStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := setupRecognition(ctx, cfg)
	if err != nil {
		return err
	}

	relayClient := client.New(cfg.RelayURL, client.DefaultOptions())
	k := kiosk.New(kiosk.Deps{
		Relay:      relayClient,
		Store:      store,
		Detector:   engine,
		Recognizer: engine,
		Settings:   settings,
		Clock:      clockwork.NewRealClock(),
		Location:   location,
	})

	log.Info().
		Str("port", cfg.Port).
		Str("relay_url", cfg.RelayURL).
		Str("recognizer", cfg.Recognizer).
		Str("data_dir", cfg.DataDir).
		Msg("starting kiosk")

	mux := http.NewServeMux()
	kiosk.NewHandler(k).RegisterRoutes(mux)
	server := setupServer(cfg.Port, mux)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relayClient.Run(ctx, k.Connect, k.HandleMessage)
	}()

	err = serve(ctx, "kiosk", server)
	stop()
	wg.Wait()

	log.Info().Msg("kiosk shutdown complete")
	return err
}

// mockSeed picks a seed for the mock recognizer when none is configured
func mockSeed(configured int64) int64 {
	if configured != 0 {
		return configured
	}
	return time.Now().UnixNano()
}
