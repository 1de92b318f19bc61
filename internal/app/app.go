package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/niksmo/storefront/config"
	"github.com/niksmo/storefront/internal/adapter"
	"github.com/niksmo/storefront/internal/adapter/artifact"
	"github.com/niksmo/storefront/internal/adapter/httphandler"
	"github.com/niksmo/storefront/internal/adapter/kafka"
	"github.com/niksmo/storefront/internal/adapter/memstore"
	"github.com/niksmo/storefront/internal/adapter/metrics"
	"github.com/niksmo/storefront/internal/adapter/storage"
	"github.com/niksmo/storefront/internal/core/port"
	"github.com/niksmo/storefront/internal/core/service"
	"github.com/niksmo/storefront/internal/similarity"
	"github.com/niksmo/storefront/pkg/schema"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sr"
)

type serdes struct {
	orderPlaced    schema.Serde
	catalogProduct schema.Serde
}

type stores struct {
	sqldb    *storage.SQLDB
	checkout port.CheckoutStore
	carts    port.CartStore
	orders   port.OrderStore
	products port.ProductsStorage
}

type App struct {
	ctx        context.Context
	cfg        config.Config
	tlsConfig  *tls.Config
	stores     stores
	holder     *similarity.Holder
	artifacts  similarity.Source
	serdes     serdes
	producer   *kafka.OrdersProducer
	consumer   *kafka.CatalogConsumer
	observer   *metrics.Observer
	service    *service.Service
	httpServer httphandler.HTTPServer
}

func New(ctx context.Context, cfg config.Config) *App {
	app := &App{ctx: ctx, cfg: cfg}

	app.initLogger()
	app.initStores()
	app.initSimilarity()
	app.initBroker()
	app.initCoreService()
	app.initConsumer()
	app.initInboundAdapters()

	return app
}

func (app *App) initLogger() {
	opts := &slog.HandlerOptions{Level: app.cfg.LogLevel}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)
}

func (app *App) initStores() {
	const op = "App.initStores"

	if app.cfg.SQLDB == "" {
		slog.Warn("sql_db is empty, using in-memory store", "op", op)
		st := memstore.New()
		app.stores = stores{
			checkout: st,
			carts:    st,
			orders:   st,
			products: st,
		}
		return
	}

	db, err := storage.NewSQLDB(app.ctx, app.cfg.SQLDB)
	if err != nil {
		app.fallDown(op, err)
	}
	orders := storage.NewOrdersRepository(db)
	app.stores = stores{
		sqldb:    &db,
		checkout: orders,
		carts:    storage.NewCartsRepository(db),
		orders:   orders,
		products: storage.NewProductsRepository(db),
	}
}

func (app *App) initSimilarity() {
	const op = "App.initSimilarity"
	log := slog.With("op", op)
	sc := app.cfg.Similarity

	var err error
	switch sc.Source {
	case config.SimilarityNone:
		log.Warn("similarity index is disabled, substitutes are off")
		return
	case config.SimilarityFile:
		app.artifacts = artifact.NewFileSource(sc.Path)
	case config.SimilarityS3:
		app.artifacts, err = artifact.NewS3Source(app.ctx, artifact.S3Options{
			Bucket:   sc.Bucket,
			Key:      sc.Path,
			Region:   sc.Region,
			Endpoint: sc.Endpoint,
		})
	case config.SimilarityMinIO:
		app.artifacts, err = artifact.NewMinIOSource(artifact.MinIOOptions{
			Endpoint:  sc.Endpoint,
			Bucket:    sc.Bucket,
			Key:       sc.Path,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			UseTLS:    sc.UseTLS,
		})
	}
	if err != nil {
		app.fallDown(op, err)
	}

	app.holder = similarity.NewHolder(
		similarity.WithMaxPayloadBytes(sc.MaxPayloadBytes),
	)
	idx, err := app.holder.Load(app.ctx, app.artifacts)
	if err != nil {
		// The service stays up and answers without substitutes until a
		// reload succeeds.
		log.Error("failed to load similarity index", "err", err)
		return
	}
	log.Info("similarity index loaded",
		"buildVersion", idx.BuildVersion(), "nProducts", idx.Len())
}

func (app *App) initBroker() {
	const op = "App.initBroker"
	bc := app.cfg.Broker

	if !bc.Enabled() {
		slog.Warn("broker is not configured, events are off", "op", op)
		return
	}

	if bc.TLS.Enabled() {
		tlsConfig, err := adapter.MakeTLSConfig(bc.TLS.CA, bc.TLS.Cert, bc.TLS.Key)
		if err != nil {
			app.fallDown(op, err)
		}
		app.tlsConfig = tlsConfig
	}

	app.initSerdes()
	app.initProducer()
}

func (app *App) initSerdes() {
	const op = "App.initSerdes"
	bc := app.cfg.Broker

	srOpts := []sr.ClientOpt{sr.URLs(bc.SchemaRegistryURLs...)}
	if app.tlsConfig != nil {
		srOpts = append(srOpts, sr.DialTLSConfig(app.tlsConfig))
	}
	srClient, err := sr.NewClient(srOpts...)
	if err != nil {
		app.fallDown(op, err)
	}

	schemaCreater := schema.NewSchemaCreater(srClient)

	orderPlacedSerde, err := schema.NewSerdeOrderPlacedV1(
		app.ctx,
		schema.SubjectOpt(bc.Topics.Orders+"-value"),
		schema.SchemaIdentifierOpt(schemaCreater),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	catalogProductSerde, err := schema.NewSerdeCatalogProductV1(
		app.ctx,
		schema.SubjectOpt(bc.Topics.Catalog+"-value"),
		schema.SchemaIdentifierOpt(schemaCreater),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	app.serdes.orderPlaced = orderPlacedSerde
	app.serdes.catalogProduct = catalogProductSerde
}

func (app *App) kafkaOpts() []kgo.Opt {
	if app.tlsConfig == nil {
		return nil
	}
	return []kgo.Opt{kgo.DialTLSConfig(app.tlsConfig)}
}

func (app *App) initProducer() {
	const op = "App.initProducer"
	bc := app.cfg.Broker

	producer, err := kafka.NewOrdersProducer(
		kafka.ProducerClientOpt(
			app.ctx, bc.SeedBrokers, bc.Topics.Orders, app.kafkaOpts()...,
		),
		kafka.ProducerEncoderOpt(app.serdes.orderPlaced),
	)
	if err != nil {
		app.fallDown(op, err)
	}
	app.producer = &producer
}

func (app *App) initCoreService() {
	const op = "App.initCoreService"

	app.observer = metrics.New()

	opts := []service.Option{
		service.WithCheckoutStore(app.stores.checkout),
		service.WithCartStore(app.stores.carts),
		service.WithOrderStore(app.stores.orders),
		service.WithProductsStorage(app.stores.products),
		service.WithObserver(app.observer),
		service.WithCheckoutRetry(
			app.cfg.Checkout.MaxAttempts, app.cfg.Checkout.RetryDelay,
		),
	}
	if app.holder != nil {
		opts = append(opts, service.WithSimilarityIndex(app.holder))
	}
	if app.producer != nil {
		opts = append(opts, service.WithOrderEvents(app.producer))
	}

	s, err := service.New(opts...)
	if err != nil {
		app.fallDown(op, err)
	}
	app.service = s
}

func (app *App) initConsumer() {
	const op = "App.initConsumer"
	bc := app.cfg.Broker

	if !bc.Enabled() {
		return
	}

	consumer, err := kafka.NewCatalogConsumer(
		kafka.ConsumerClientOpt(
			bc.SeedBrokers, bc.Topics.Catalog, bc.Consumers.CatalogGroup,
			app.kafkaOpts()...,
		),
		kafka.ConsumerDecoderOpt(app.serdes.catalogProduct),
		kafka.CatalogConsumerSaverOpt(app.service),
	)
	if err != nil {
		app.fallDown(op, err)
	}
	app.consumer = &consumer
}

func (app *App) initInboundAdapters() {
	mux := http.NewServeMux()
	httphandler.RegisterProducts(mux, app.service)
	httphandler.RegisterCart(mux, app.service)
	httphandler.RegisterOrders(mux, app.service, app.service)
	mux.Handle("GET /metrics", app.observer.Handler())

	handler := httphandler.LogRequests(httphandler.AllowJSON(mux))
	app.httpServer = httphandler.NewHTTPServer(
		app.cfg.HTTPServerAddr, handler, app.cfg.RequestTimeout,
	)
}

func (app *App) Run(stopFn context.CancelFunc) {
	go app.httpServer.Run(stopFn)

	if app.consumer != nil {
		go app.consumer.Run(app.ctx)
	}

	if app.holder != nil {
		go app.holder.Watch(
			app.ctx, app.artifacts, app.cfg.Similarity.ReloadInterval,
		)
	}

	slog.Info("application is running")
}

func (app *App) Close(ctx context.Context) {
	slog.Info("application is closing...")

	app.httpServer.Close(ctx)
	if app.consumer != nil {
		app.consumer.Close()
	}
	if app.producer != nil {
		app.producer.Close()
	}
	if app.stores.sqldb != nil {
		app.stores.sqldb.Close()
	}

	slog.Info("application is closed")
}

func (app *App) fallDown(op string, err error) {
	panic(fmt.Errorf("%s: %w", op, err))
}
