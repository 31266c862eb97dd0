package main

import (
	"PPDesk/global/config"
	"PPDesk/logger"
	"PPDesk/service/api"
	"PPDesk/service/chat"
	"PPDesk/service/natsx"
	"PPDesk/service/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app 进程内组装好的组件；close 顺序与构造相反。
type app struct {
	sync      *chat.Synchronizer
	store     storage.Store
	persister *storage.Persister
	nats      *natsx.Client
	publisher *natsx.UpdatePublisher
	unsubs    []func()
	log       *zap.Logger
}

func buildApp(c config.AppConfig, reg prometheus.Registerer) (a *app, err error) {
	a = &app{log: logger.Named("deskchat")}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	opts := []chat.Option{
		chat.WithTransport(c.TransportFactory()),
		chat.WithMetrics(chat.NewMetrics(reg)),
	}
	if ac, ok := c.APIConfig(); ok {
		client, err := api.New(ac)
		if err != nil {
			return a, err
		}
		opts = append(opts, chat.WithAPI(client))
	}
	if a.store, err = storage.Open(c.StorageConfig()); err != nil {
		return a, err
	}
	if a.store != nil {
		opts = append(opts, chat.WithCache(a.store))
	}
	a.sync = chat.New(c.ChatConfig(), opts...)

	if a.store != nil {
		a.persister = storage.NewPersister(a.store, []string{chat.PlaceholderIDPrefix}, nil)
		a.unsubs = append(a.unsubs, a.sync.Subscribe(a.persister.Observe))
	}
	if nc, ok := c.NatsConfig(); ok {
		if a.nats, err = natsx.Connect(nc); err != nil {
			return a, err
		}
		a.publisher = natsx.NewUpdatePublisher(a.nats, c.Nats.SubjectPrefix, nil)
		a.unsubs = append(a.unsubs, a.sync.Subscribe(a.publisher.Observe))
	}
	a.log.Info("synchronizer ready",
		zap.String("gateway", c.Gateway.Mode),
		zap.String("storage", c.Storage.Driver),
		zap.Bool("nats", a.nats != nil),
	)
	return a, nil
}

func (a *app) close() {
	for _, u := range a.unsubs {
		u()
	}
	if a.sync != nil {
		_ = a.sync.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.nats != nil {
		_ = a.nats.Close()
	}
	if a.persister != nil {
		a.persister.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close storage", zap.Error(err))
		}
	}
}
