package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/studyhive/studyroom/internal/api"
	"github.com/studyhive/studyroom/internal/attendance"
	"github.com/studyhive/studyroom/internal/broadcast"
	"github.com/studyhive/studyroom/internal/config"
	"github.com/studyhive/studyroom/internal/coordinator"
	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/session"
	"github.com/studyhive/studyroom/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// flag defaults can be overridden via a .env file
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("STUDYROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("STUDYROOM_DSN",
		"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("STUDYROOM_SIGNING_KEY"), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[studyroom] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgStudyRoomRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.RegisterMetric(stats.ActiveConnections)
	statsUpdater.RegisterMetric(stats.ActiveRoomGroups)
	statsUpdater.RegisterMetric(stats.EventsBroadcast)
	statsUpdater.RegisterMetric(stats.EventsDropped)
	statsUpdater.RegisterMetric(stats.OpenAttendance)

	directory := session.NewDirectory(logger, dbConn)
	ledger := attendance.NewLedger(logger, dbConn, statsUpdater)
	caster := broadcast.NewCaster(logger, directory, statsUpdater)
	co := coordinator.New(logger, directory, ledger, caster)

	srv := api.NewStudyRoomApp(mux, logger, co, directory, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("stopping room groups...")
	caster.Shutdown()

	logger.Println("shutdown complete")
}
