package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pledgeball_sync/internal/cache"
	"pledgeball_sync/internal/config"
	"pledgeball_sync/internal/events"
	"pledgeball_sync/internal/handlers"
	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
	"pledgeball_sync/internal/pledgeball"
	"pledgeball_sync/internal/queue"
	"pledgeball_sync/internal/repository"
	"pledgeball_sync/internal/service"
)

func main() {
	ctx := context.Background()
	logger := log.Default()

	// ---------- config ----------
	cfg := config.Load()

	// ---------- metrics ----------
	metrics.Register()

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db:", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("db schema:", err)
	}

	metaRepo := repository.NewEventMetaRepository(pool)

	// ---------- remote api ----------
	remote := pledgeball.NewClient(cfg.PledgeballAPIURL, cfg.PledgeballAPIKey, cfg.PledgeballTimeout, logger)

	// ---------- kafka producer (optional) ----------
	var publisher service.DeliveryPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal("kafka producer:", err)
		}
		defer producer.Close()
		publisher = producer
	}

	// ---------- queue domain ----------
	pledgeCache := queue.NewPledgeCache(metaRepo, cfg.SkipSubmit, logger)

	runner := service.NewQueueRunner(
		pledgeCache,
		remote,
		queue.PolicyByName(cfg.QueuePolicy),
		publisher,
		cfg.SkipSubmit,
		cfg.MaxDeliveryAttempts,
		logger,
	)

	// ---------- dispatcher ----------
	dispatcher := service.NewPledgeService(
		remote,
		cfg.EventGroupID,
		cfg.OtherPledgeNumber,
		cfg.SkipSubmit,
		logger,
	)
	dispatcher.OnSubmission(pledgeCache.AddBackup)
	dispatcher.OnSubmission(pledgeCache.EnqueueIfFailed)
	dispatcher.OnSubmission(func(ctx context.Context, sub *models.Submission, resp *models.RemoteResponse) error {
		if resp == nil || publisher == nil {
			return nil
		}
		return publisher.PublishDelivery(sub, resp, "dispatch")
	})
	dispatcher.OnResponse(pledgeCache.FilterResponse)

	// ---------- redis cache (optional) ----------
	var c cache.Cache
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisCache.Close()
		cache.StartRedisSizeCollector(ctx, redisCache.RawClient(), 30*time.Second, logger)
		c = redisCache
	}

	// ---------- gauge collector ----------
	metrics.StartQueueCollector(ctx, metaRepo, 10*time.Second, logger)

	// ---------- handlers ----------
	h := handlers.NewPledgeHandler(dispatcher, runner, pledgeCache, remote, c, cfg.CacheTTL)

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	handlers.RegisterPledgeRoutes(r, h)

	// ---------- start server ----------
	addr := ":" + cfg.HTTPPort
	log.Println("server starting on", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal(err)
	}
}
