// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/config"
	"github.com/parlor-games/parlor/internal/feed"
	"github.com/parlor-games/parlor/internal/room"
	"github.com/parlor-games/parlor/internal/server"
	"github.com/parlor-games/parlor/internal/session"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	broker, err := session.NewBroker()
	if err != nil {
		log.Fatalf("session broker: %v", err)
	}

	f, err := feed.Connect(cfg.RedisAddr, cfg.RedisDB, cfg.FeedQueue, logger)
	if err != nil {
		log.Fatalf("event feed: %v", err)
	}
	if f != nil {
		logger.Infof("event feed enabled on %s (queue %s)", cfg.RedisAddr, cfg.FeedQueue)
		defer f.Close()
	}

	registry := room.NewRegistry(logger, cfg.StaleTimeout, cfg.SweepInterval)
	registry.OnReclaim = func(code string, members []uuid.UUID) {
		for _, id := range members {
			broker.Revoke(id)
		}
	}
	go registry.Run(context.Background())

	srv := server.New(cfg, logger, registry, broker, f)

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
