package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Genie/account"
	"Genie/ai"
	"Genie/bot"
	"Genie/core"
	"Genie/lib/logger"
	"Genie/lib/sl"
	"Genie/server"
	"Genie/storage"

	"go.mongodb.org/mongo-driver/mongo"
)

type stores struct {
	ledger  storage.Ledger
	dialogs storage.ContextStorage
	closers []io.Closer
	mongo   *mongo.Client
}

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log, logCloser := logger.Setup(conf.Env, logger.FileConfig{
		Filename:   conf.Log.File,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		MaxAge:     conf.Log.MaxAge,
		Compress:   conf.Log.Compress,
	})
	defer logCloser.Close()

	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.Model),
		slog.String("pro_model", conf.ProModel),
		slog.String("storage", conf.Storage.Driver),
	).Info("starting genie bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// without a working ledger quotas cannot be enforced, so refuse to start
	st, err := openStores(ctx, conf, log)
	if err != nil {
		log.Error("opening storage", sl.Err(err))
		os.Exit(1)
	}
	defer st.close(log)

	accounts := account.NewService(st.ledger, account.OptionsFromConfig(conf), log)
	chat := ai.NewChat(conf, log, st.dialogs)
	defer func() {
		if err := chat.Close(); err != nil {
			log.Error("closing chat service", sl.Err(err))
		}
	}()

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}
	conf.Username = tgBot.Username()
	if err := tgBot.SetCommands(); err != nil {
		log.Warn("publishing command menu", sl.Err(err))
	}

	queue := bot.NewQueue(ctx, conf.Workers, log)
	dispatcher := bot.NewDispatcher(conf, log, accounts, chat, tgBot)
	tgBot.SetHandler(dispatcher, queue)

	if conf.Webhook.URL != "" {
		runWebhook(ctx, conf, log, tgBot)
	} else if err := tgBot.StartPolling(ctx); err != nil {
		log.Error("polling stopped with error", sl.Err(err))
	}

	log.Info("shutting down, waiting for running requests")
	queue.Wait()
	log.Info("shutdown complete")
}

func runWebhook(ctx context.Context, conf *core.Config, log *slog.Logger, tgBot *bot.TgBot) {
	srv := server.NewServer(conf, log, tgBot.HandleUpdate)
	if err := tgBot.SetWebhook(srv.WebhookURL()); err != nil {
		log.Error("registering webhook", sl.Err(err))
		return
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			log.Error("webhook server stopped with error", sl.Err(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("stopping webhook server", sl.Err(err))
	}
}

func openStores(ctx context.Context, conf *core.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	switch conf.Storage.Driver {
	case core.DriverMongo:
		client, err := storage.ConnectMongo(conf.MongoURI())
		if err != nil {
			return nil, err
		}
		st.mongo = client
		db := client.Database(conf.Mongo.Database)
		if err = storage.MigrateMongo(ctx, db, log); err != nil {
			st.close(log)
			return nil, err
		}
		st.ledger = storage.NewMongoLedger(client, conf.Mongo.Database, log)
		st.dialogs = storage.NewMongoStorage(client, conf.Mongo.Database, log)
		log.With(
			slog.String("db", conf.Mongo.Database),
			slog.String("host", conf.Mongo.Host),
		).Info("using MongoDB storage")
	case core.DriverSQL:
		db, err := storage.OpenSQLite(conf.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err = storage.MigrateSQL(ctx, db, log); err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		st.ledger = storage.NewSQLLedger(db, log)
		log.With(slog.String("dsn", conf.Storage.DSN)).Info("using SQL ledger")
	default:
		st.ledger = storage.NewMemoryLedger()
		log.Warn("using in-memory ledger, quotas are lost on restart")
	}
	st.closers = append(st.closers, st.ledger)

	if conf.Redis.Enabled {
		client, err := storage.ConnectRedis(conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			st.close(log)
			return nil, err
		}
		st.dialogs = storage.NewRedisStorage(client, time.Duration(conf.Redis.TTLHours)*time.Hour)
		log.With(slog.String("addr", conf.Redis.Addr)).Info("using Redis dialog storage")
	}
	if st.dialogs == nil {
		st.dialogs = storage.NewMemoryStorage()
		log.Info("using in-memory dialog storage")
	}
	return st, nil
}

func (s *stores) close(log *slog.Logger) {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnecting mongo: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("closing storage", sl.Err(err))
	}
}
