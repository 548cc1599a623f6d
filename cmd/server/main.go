package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/config"
	dbpostgres "github.com/k-code-yt/payment-webhooks/internal/db/postgres"
	"github.com/k-code-yt/payment-webhooks/internal/kafka/producer"
	"github.com/k-code-yt/payment-webhooks/internal/notify"
	"github.com/k-code-yt/payment-webhooks/internal/repo/ledger"
	"github.com/k-code-yt/payment-webhooks/internal/repo/store"
	"github.com/k-code-yt/payment-webhooks/internal/service/outbox"
	"github.com/k-code-yt/payment-webhooks/internal/service/pipeline"
	"github.com/k-code-yt/payment-webhooks/internal/signature"
	transport "github.com/k-code-yt/payment-webhooks/internal/transport/http"
)

func main() {
	cfg := config.Load()

	db, err := dbpostgres.NewDBConn(cfg.Postgres)
	if err != nil {
		logrus.Fatalf("unable to connect to db: %v", err)
	}
	defer db.Close()

	led := ledger.NewPostgresLedger(db, cfg.ClaimLease)
	st := store.NewPostgresStore(db)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.SMTPAddr != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass)
	}
	notifier = notify.WithTimeout(notifier, cfg.NotifyTimeout)

	verifier := signature.NewVerifier(cfg.WebhookSecret, cfg.SignatureTolerance, cfg.VerifyTimeout)
	pipe := pipeline.New(verifier, led, st, notifier)

	if cfg.Kafka.Enabled {
		kp, err := producer.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			logrus.Fatalf("unable to create kafka producer: %v", err)
		}
		defer kp.Close()

		relay := outbox.NewRelay(led, kp, cfg.Kafka)
		relay.Start()
		defer relay.Stop()
		logrus.WithField("topic", cfg.Kafka.Topic).Info("outbox relay started")
	}

	srv := transport.NewServer(cfg.HTTPPort, cfg.SignatureHeader, pipe)
	httpServer := srv.HTTPServer()

	go func() {
		logrus.Infof("listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	sigCH := make(chan os.Signal, 1)
	signal.Notify(sigCH, os.Interrupt, syscall.SIGTERM)
	<-sigCH
	logrus.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown failed: %v", err)
		os.Exit(1)
	}
	logrus.Info("server shutdown complete")
}
