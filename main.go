package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/okisilev/tg-askeza/internal/config"
	"github.com/okisilev/tg-askeza/internal/gateway"
	"github.com/okisilev/tg-askeza/internal/handlers"
	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/internal/middleware"
	"github.com/okisilev/tg-askeza/internal/platform"
	"github.com/okisilev/tg-askeza/internal/product"
	"github.com/okisilev/tg-askeza/internal/reaper"
	"github.com/okisilev/tg-askeza/internal/reconcile"
	"github.com/okisilev/tg-askeza/internal/scheduler"
	"github.com/okisilev/tg-askeza/internal/webhook"
	"github.com/okisilev/tg-askeza/store"
)

func main() {
	cfg, err := config.Load("config.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	redisAddr := fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)
	rdb, err := store.NewRedisClient(ctx, redisAddr, cfg.RedisPassword, cfg.RedisDB, "askeza_bot")
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	checkoutStore := store.NewRedisCheckoutStore(rdb, cfg.CheckoutTTLHours)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()

	httpClient := &http.Client{
		Timeout: 10 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
	)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	catalog := product.NewCatalog(cfg.PrivateChannelID, cfg.PrivateChatID)
	gatewayClient := gateway.NewClient(cfg.YookassaShopID, cfg.YookassaSecretKey)
	messenger := platform.NewTelegram(b)

	lc := lifecycle.New(pgStore, checkoutStore, gatewayClient, messenger, catalog, cfg.YookassaReturnURL)

	sched := scheduler.New(ctx, 4*time.Minute)
	if err := sched.AddEvery(cfg.ReconcileInterval, reconcile.New(pgStore, gatewayClient, lc)); err != nil {
		log.Fatalf("Failed to schedule reconciler: %v", err)
	}
	if err := sched.AddEvery(cfg.ReapInterval, reaper.New(pgStore, lc)); err != nil {
		log.Fatalf("Failed to schedule reaper: %v", err)
	}
	if err := sched.AddDaily(cfg.NotifyHour, lifecycle.NewReminderJob(lc, 3*24*time.Hour)); err != nil {
		log.Fatalf("Failed to schedule reminder: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	webhookSrv := webhook.NewServer(cfg.WebhookAddr, lc)
	webhookSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := webhookSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Webhook server shutdown error: %v", err)
		}
	}()

	middlewares := middleware.NewMessageAnalyzer(pgStore)
	h := handlers.NewHandlers(lc, pgStore, messenger, catalog)

	handlerChain := middlewares.UpsertUserMiddleware(
		middlewares.AnalyzeMessageMiddleware(
			h.MainHandler,
		),
	)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	log.Println("Bot started. Press Ctrl+C to stop.")
	b.Start(ctx)
}
