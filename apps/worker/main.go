package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
	brokersvc "github.com/lifecraft/backend/services/broker"
	cachesvc "github.com/lifecraft/backend/services/cache"
	emailsvc "github.com/lifecraft/backend/services/email"
	logsvc "github.com/lifecraft/backend/services/logger"
	"github.com/lifecraft/backend/storage/database"
	sqlxrepos "github.com/lifecraft/backend/storage/database/sqlx"
)

const consumerTag = "lifecraft-badge-worker"

// evaluationTimeout bounds one badge evaluation run.
const evaluationTimeout = 30 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "WORKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// the API owns migrations; the worker only connects
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	cache, err := cachesvc.NewRedisCache(context.Background(), conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	defer func() { _ = cache.Close() }()

	// publisher side; the badge evaluator itself never enqueues
	broker, err := brokersvc.NewRabbitBroker(conf.Broker)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rabbitmq: %v", err), err)
	}
	defer func() { _ = broker.Close() }()

	usrRepo := sqlxrepos.NewUserRepository(db)
	learnRepo := sqlxrepos.NewLearningRepository(db)
	badgeRepo := sqlxrepos.NewBadgeRepository(db)

	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf), conf)
	learnSvc := learning.NewService(learnRepo, usrSvc, broker, logger)
	badgeSvc := badge.NewService(badgeRepo, learnSvc, usrSvc, cache, conf.Badge, logger)

	// =========================================================================
	// Consume

	logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
	defer logger.Info("Worker stopped")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = consume(ctx, conf, badgeSvc, logger); err != nil {
		logger.Fatal(fmt.Sprintf("worker failed: %v", err), err)
	}
}

// consume runs one consume session on the badge evaluation queue until the
// context is canceled or the channel fails.
func consume(ctx context.Context, conf *core.Config, badgeSvc badge.Service, logger core.Logger) error {
	conn, err := amqp.Dial(conf.Broker.URL)
	if err != nil {
		return errors.Wrap(err, "connecting to rabbitmq")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "opening channel")
	}
	defer func() { _ = ch.Close() }()

	if err = ch.Qos(conf.Broker.Prefetch, 0, false); err != nil {
		return errors.Wrap(err, "setting qos")
	}
	if _, err = ch.QueueDeclare(
		conf.Broker.BadgeQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return errors.Wrap(err, "declaring queue")
	}

	deliveries, err := ch.Consume(
		conf.Broker.BadgeQueue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "consuming")
	}

	logger.Info(fmt.Sprintf("consuming queue %q", conf.Broker.BadgeQueue))
	for {
		select {
		case <-ctx.Done():
			if err = ch.Cancel(consumerTag, false); err != nil {
				logger.Error(fmt.Sprintf("canceling consumer: %v", err), err)
			}
			logger.Info("shutdown signal received")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("deliveries channel closed unexpectedly")
			}
			handleDelivery(ctx, d, badgeSvc, logger)
		}
	}
}

// handleDelivery evaluates one message. Failed evaluations are dropped rather
// than requeued to keep at-most-once semantics; the next qualifying action
// enqueues a fresh evaluation anyway.
func handleDelivery(ctx context.Context, d amqp.Delivery, badgeSvc badge.Service, logger core.Logger) {
	var msg core.BadgeEvaluation
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.UserID == "" {
		logger.Warn(fmt.Sprintf("dropping invalid message (tag %d): %v", d.DeliveryTag, err))
		if err = d.Nack(false, false); err != nil {
			logger.Error(fmt.Sprintf("nacking message: %v", err), err)
		}
		return
	}

	evalCtx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	earned, err := badgeSvc.Evaluate(evalCtx, msg.UserID)
	if err != nil {
		logger.Error(fmt.Sprintf("evaluating badges for user %s: %v", msg.UserID, err), err)
		if err = d.Nack(false, false); err != nil {
			logger.Error(fmt.Sprintf("nacking message: %v", err), err)
		}
		return
	}

	if len(earned) > 0 {
		names := make([]string, len(earned))
		for i, b := range earned {
			names[i] = b.Name
		}
		logger.Info(fmt.Sprintf("user %s earned badges %v (reason %q)", msg.UserID, names, msg.Reason))
	}
	if err = d.Ack(false); err != nil {
		logger.Error(fmt.Sprintf("acking message: %v", err), err)
	}
}
