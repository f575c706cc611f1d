// Command server runs the payables relay: the HTTP API, the finalization
// gate and the host notification bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/cache"
	"payables-relay/internal/chainclients"
	"payables-relay/internal/config"
	"payables-relay/internal/db"
	"payables-relay/internal/reader"
	"payables-relay/internal/repository"
	"payables-relay/internal/resolver"
	"payables-relay/internal/router"
	"payables-relay/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	gormDB, err := db.Open(cfg.Database.DSN, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}

	clients, err := chainclients.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to dial chains")
	}
	defer clients.Close()

	c := cache.New(cfg.Cache.IDCapacity)
	rdr := reader.New(clients, log)
	res := resolver.New(clients, c, log)

	finals := repository.NewFinalizationRepository(gormDB)
	payables := repository.NewPayableRepository(gormDB)
	payments := repository.NewPaymentRepository(gormDB)
	withdrawals := repository.NewWithdrawalRepository(gormDB)
	users := repository.NewUserRepository(gormDB)

	push := services.NewPushHub(log)
	var notifier services.Notifier = push
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.WithError(err).Warn("NATS disconnected")
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Info("NATS reconnected")
			}),
		)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer nc.Close()
		notifier = services.NewFanoutNotifier(
			services.NewNATSNotifier(nc, cfg.NATS.SubjectBase, log),
			push,
		)
	}

	finalize := services.NewFinalizeService(rdr, c, finals, payables, payments, withdrawals, users, notifier, log)
	query := services.NewQueryService(rdr, res, payables, payments, withdrawals, users, log)

	engine := router.New(router.Deps{
		Config:   cfg,
		Finalize: finalize,
		Query:    query,
		Push:     push,
		Log:      log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("Relay listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}
