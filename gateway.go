package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/pires/go-proxyproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bloodconnect-msggw/phone"
)

// Gateway owns the long-lived clients and the components built on them. Every request handler
// reuses the same instances.
type Gateway struct {
	Config      Config
	LogManager  *LogManager
	MongoClient *mongo.Client
	DB          *gorm.DB
	AMPQClient  *AMPQClient
	Provider    Provider
	Validator   *WebhookValidator
	Recorder    Recorder
	RecordQueue *AsyncRecorder
	Stats       messageCounter
	Inbound     *InboundHandler
	Dispatcher  *Dispatcher
	Metrics     *GatewayMetrics
	Registry    *prometheus.Registry
	App         *iris.Application
}

// NewGateway connects to the stores and builds the inbound and outbound pipelines.
func NewGateway(ctx context.Context, cfg Config, lm *LogManager) (*Gateway, error) {
	gateway := &Gateway{
		Config:     cfg,
		LogManager: lm,
		Registry:   prometheus.NewRegistry(),
	}
	gateway.Metrics = NewGatewayMetrics(gateway.Registry)

	normalizer, err := phone.ForRegion(cfg.Region)
	if err != nil {
		return nil, err
	}
	if cfg.CountryCode != "" {
		normalizer.CountryCode = cfg.CountryCode
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	gateway.MongoClient = mongoClient
	database := mongoClient.Database(cfg.MongoDatabase)

	recorders := MultiRecorder{NewMongoRecorder(
		database.Collection(cfg.MessageCollection),
		database.Collection(cfg.StatusLogCollection),
		cfg.RecordTimeout,
	)}

	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		gormRecorder := NewGormRecorder(db)
		if err := gormRecorder.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate message_records: %w", err)
		}
		gateway.DB = db
		gateway.Stats = gormRecorder
		recorders = append(recorders, gormRecorder)
	}

	if cfg.AMQPURL != "" {
		gateway.AMPQClient = NewMsgQueueClient(cfg.AMQPURL, []string{cfg.AMQPQueue}, lm)
		recorders = append(recorders, NewEventPublisher(gateway.AMPQClient, cfg.AMQPQueue, cfg.RecordTimeout))
	}
	gateway.Recorder = recorders
	gateway.RecordQueue = NewAsyncRecorder(recorders, cfg.RecordBuffer, cfg.RecordTimeout, lm)

	twilioHandler := NewTwilioHandler(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioStatusCallback)
	if !twilioHandler.Configured() {
		lm.SendLog(lm.BuildLog("Gateway", "ProviderNotConfigured", logrus.WarnLevel, nil, ErrProviderNotConfigured))
	}
	gateway.Provider = twilioHandler

	if cfg.TwilioValidateWebhook {
		if cfg.TwilioAuthToken == "" || cfg.PublicURL == "" {
			return nil, fmt.Errorf("TWILIO_VALIDATE_WEBHOOKS needs TWILIO_AUTH_TOKEN and PUBLIC_URL")
		}
		gateway.Validator = NewWebhookValidator(cfg.TwilioAuthToken, cfg.PublicURL)
	}

	gateway.Inbound = &InboundHandler{
		Normalizer:  normalizer,
		Directory:   NewMongoDirectory(database.Collection(cfg.DonorCollection), cfg.LookupTimeout),
		Interpreter: NewInterpreter(cfg.BrandName, cfg.PortalURL),
		Recorder:    gateway.RecordQueue,
		Metrics:     gateway.Metrics,
		LogManager:  lm,
	}

	dispatcher := NewDispatcher(gateway.Provider, &Addresser{Channel: cfg.Channel, Normalizer: normalizer}, cfg.SenderNumber(), lm)
	dispatcher.Delay = cfg.SendDelay
	dispatcher.Concurrency = cfg.Concurrency
	dispatcher.Recorder = gateway.RecordQueue
	dispatcher.Metrics = gateway.Metrics
	gateway.Dispatcher = dispatcher

	gateway.App = gateway.newWebApp()
	return gateway, nil
}

// Start serves the web routes and blocks. With HAPROXY_PROXY_PROTOCOL the listener expects a
// PROXY header on every connection.
func (gateway *Gateway) Start() error {
	lm := gateway.LogManager

	listen, err := net.Listen("tcp", gateway.Config.WebListen)
	if err != nil {
		lm.SendLog(lm.BuildLog(
			"Server.Web.Start",
			"ListenError",
			logrus.ErrorLevel,
			map[string]interface{}{
				"addr": gateway.Config.WebListen,
			},
			err,
		))
		return err
	}

	if gateway.Config.HAProxyProxyProtocol {
		listen = &proxyproto.Listener{Listener: listen}
	}

	lm.SendLog(lm.BuildLog(
		"Server.Web.Start",
		"Listening",
		logrus.InfoLevel,
		map[string]interface{}{
			"addr":          gateway.Config.WebListen,
			"proxyProtocol": gateway.Config.HAProxyProxyProtocol,
			"channel":       gateway.Config.Channel,
		},
	))

	return gateway.App.Run(iris.Listener(listen), iris.WithoutStartupLog, iris.WithoutServerError(iris.ErrServerClosed))
}

// Close stops the web server and releases the store and broker connections.
func (gateway *Gateway) Close(ctx context.Context) {
	if gateway.App != nil {
		_ = gateway.App.Shutdown(ctx)
	}
	if gateway.RecordQueue != nil {
		_ = gateway.RecordQueue.Close(ctx)
	}
	if gateway.AMPQClient != nil {
		_ = gateway.AMPQClient.Close()
	}
	if gateway.DB != nil {
		if sqlDB, err := gateway.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if gateway.MongoClient != nil {
		_ = gateway.MongoClient.Disconnect(ctx)
	}
}
