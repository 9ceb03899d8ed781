package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lvdashuaibi/livevote/config"
	"github.com/lvdashuaibi/livevote/internal/api"
	"github.com/lvdashuaibi/livevote/internal/auth"
	"github.com/lvdashuaibi/livevote/internal/broadcast"
	"github.com/lvdashuaibi/livevote/internal/repository"
	"github.com/lvdashuaibi/livevote/internal/service"
	"github.com/lvdashuaibi/livevote/internal/tally"
)

const shutdownTimeout = 10 * time.Second

var configPath = flag.String("config", "config/config.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	mysqlRepo, err := repository.NewMySQLRepository(cfg.MySQL)
	if err != nil {
		log.Fatalf("init mysql repository: %v", err)
	}
	defer mysqlRepo.Close()
	log.Println("vote ledger ready")

	redisRepo, err := repository.NewRedisRepository(cfg.Redis)
	if err != nil {
		log.Fatalf("init redis repository: %v", err)
	}
	defer redisRepo.Close()
	log.Println("tally cache ready")

	engine := tally.NewEngine(mysqlRepo, redisRepo)

	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)

	hub := broadcast.NewHub()
	hub.Start()
	defer hub.Stop()
	log.Println("broadcast hub started")

	voteService := service.NewVoteService(mysqlRepo, engine, tokens, hub)

	server := api.NewServer(cfg, voteService, tokens, hub)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Fatalf("start server: %v", err)
		}
	}()
	log.Printf("livevote running on http://localhost:%d", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
