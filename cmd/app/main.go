package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"app/cfg"
	"app/internal/app/api"
	"app/internal/app/generator"
	"app/internal/app/history"
	"app/internal/app/localserver"
	"app/internal/app/settings"
	"app/internal/app/voices"
	"app/pkg/ai"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "cfg-path", "cfg/cfg.yaml", "path to config file")
	flag.Parse()

	var cfg *cfg.Config
	if cfgFile, err := os.ReadFile(cfgPath); err != nil {
		log.Fatalf("can't open %s file: %v", cfgPath, err)
	} else if err = yaml.Unmarshal(cfgFile, &cfg); err != nil {
		log.Fatal("can't unmarshal cfg.yaml file", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	slog.SetDefault(logger)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal("failed to resolve home dir: ", err)
		}

		cfg.DataDir = filepath.Join(home, ".voiceclonememo", "data")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("failed to create data dir: ", err)
	}

	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	}

	reg := prometheus.NewRegistry()
	ai.RegisterMetrics(reg)
	localserver.RegisterMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{
		Timeout: 5 * time.Minute, // local inference is slow, the model may chew for a while
	}

	settingsStore, err := settings.NewStore(logger.WithGroup("settings"), cfg.DataDir)
	if err != nil {
		log.Fatal("failed to init settings store: ", err)
	}

	registry, err := voices.NewRegistry(logger.WithGroup("voices"), cfg.DataDir)
	if err != nil {
		log.Fatal("failed to init voice registry: ", err)
	}

	historyCtx, cancelHistory := context.WithTimeout(ctx, 10*time.Second)
	defer cancelHistory()

	historyDB, err := history.New(historyCtx, &cfg.History)
	if err != nil {
		log.Fatal("failed to init history db: ", err)
	}
	defer historyDB.Close()

	localTTS := ai.NewLocalClient(httpClient, &cfg.LocalTTS)

	engines := []ai.Engine{
		localTTS,
		ai.NewElevenLabsClient(httpClient, &cfg.ElevenLabs, settingsStore),
		ai.NewOpenAIClient(httpClient, &cfg.OpenAI, settingsStore),
		ai.NewPlayHTClient(httpClient, &cfg.PlayHT, settingsStore),
		ai.NewKokoroClient(httpClient, &cfg.Kokoro),
	}

	supervisor := localserver.NewSupervisor(logger.WithGroup("localserver"), &cfg.Local, localTTS, settingsStore)

	outputDir := filepath.Join(cfg.DataDir, "output")

	gen, err := generator.New(logger.WithGroup("generator"), engines, settingsStore, registry, supervisor, historyDB, outputDir)
	if err != nil {
		log.Fatal("failed to init generator: ", err)
	}

	api := api.NewAPI(&cfg.Api, logger.WithGroup("api"), gen, supervisor, registry, settingsStore, historyDB, reg, outputDir)

	router := api.NewRouter()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	srv := &http.Server{
		Addr:           "127.0.0.1:" + strconv.Itoa(cfg.Api.Port),
		Handler:        router,
		MaxHeaderBytes: 20971520,
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		logger.Info("Starting server", "addr", srv.Addr)

		if err := srv.ListenAndServe(); err != nil {
			logger.Error("ListenAndServe finished", "err", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

	loop:
		for {
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				break loop
			}

			// keep the server-up gauge honest while the app idles
			supervisor.Probe(ctx)
		}
	}()

	select {
	case <-ctx.Done():
	case <-stop:
		logger.Info("Interrupt triggerred")
		cancel()
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Fatal(err)
	}

	wg.Wait()
}
