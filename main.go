package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"

	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"github.com/eblooo/esp-smart-lock/firmware"
	"github.com/eblooo/esp-smart-lock/ota"
)

var debug bool
var configFile string

var logger *zap.Logger

// Config represents the OTA server configuration.
type Config struct {
	ListenAddr    string `yaml:"listenAddr"`
	FirmwareDir   string `yaml:"firmwareDir"`
	LatestVersion string `yaml:"latestVersion"`
}

func init() {
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.StringVar(&configFile, "c", "config.yaml", "configuration file")
}

func main() {
	var err error

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		log.Fatalln("failed to create logger:", err)
	}

	logger.Debug("Debug mode enabled")

	cfg := &Config{
		ListenAddr:    ":8080",
		FirmwareDir:   "./firmware-images",
		LatestVersion: "1.1.0",
	}

	f, err := os.Open(configFile)
	if err != nil {
		logger.Sugar().Fatalf("failed to open config file %s: %s", configFile, err.Error())
	}

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		logger.Sugar().Fatalf("failed to parse config file %s: %s", configFile, err.Error())
	}

	if err := f.Close(); err != nil {
		logger.Error("failed to close config file", zap.Error(err))
	}

	store, err := firmware.NewStore(cfg.FirmwareDir, cfg.LatestVersion)
	if err != nil {
		logger.Sugar().Fatal("failed to open firmware store:", err)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: ota.NewServer(store, logger, debug).Router(),
	}

	go func() {
		logger.Info("OTA server started",
			zap.String("addr", cfg.ListenAddr),
			zap.String("version", cfg.LatestVersion),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatal("server failed:", err)
		}
	}()

	<-ctx.Done()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shut down server", zap.Error(err))
	}
}
