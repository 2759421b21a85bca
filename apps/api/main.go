package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/lifecraft/backend/apps/api/echo"
	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/community"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/recommend"
	"github.com/lifecraft/backend/core/user"
	aisvc "github.com/lifecraft/backend/services/ai"
	brokersvc "github.com/lifecraft/backend/services/broker"
	cachesvc "github.com/lifecraft/backend/services/cache"
	emailsvc "github.com/lifecraft/backend/services/email"
	logsvc "github.com/lifecraft/backend/services/logger"
	"github.com/lifecraft/backend/storage/database"
	sqlxrepos "github.com/lifecraft/backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up cache & broker
	cache, err := cachesvc.NewRedisCache(context.Background(), conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	defer func() { _ = cache.Close() }()

	broker, err := brokersvc.NewRabbitBroker(conf.Broker)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rabbitmq: %v", err), err)
	}
	defer func() { _ = broker.Close() }()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	learnRepo := sqlxrepos.NewLearningRepository(db)
	badgeRepo := sqlxrepos.NewBadgeRepository(db)
	commRepo := sqlxrepos.NewCommunityRepository(db)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	learnSvc := learning.NewService(learnRepo, usrSvc, broker, logger)
	badgeSvc := badge.NewService(badgeRepo, learnSvc, usrSvc, cache, conf.Badge, logger)
	recSvc := recommend.NewService(newGenerator(conf, logger), learnSvc, badgeSvc, cache, conf.Recommend, logger)
	commSvc := community.NewService(commRepo, mailSvc, broker, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			UserSvc:      usrSvc,
			LearningSvc:  learnSvc,
			BadgeSvc:     badgeSvc,
			RecommendSvc: recSvc,
			CommunitySvc: commSvc,
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

// newGenerator returns the Gemini generator, or the disabled one when no API
// key is configured so recommendations degrade to the heuristic fallback.
func newGenerator(conf *core.Config, logger core.Logger) recommend.Generator {
	gen, err := aisvc.NewGeminiGenerator(context.Background(), conf.AI)
	if err != nil {
		logger.Warn(fmt.Sprintf("gemini unavailable, recommendations fall back to heuristics: %v", err))
		return aisvc.NewDisabledGenerator()
	}
	return gen
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
