package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"LIBRIS-backend/docs"
	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/fines"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/db"
	"LIBRIS-backend/internal/platform/notify"
	"LIBRIS-backend/internal/reports"
)

// notifier は通知の送信と受信箱の両方
type notifier interface {
	notify.Notifier
	notify.Inbox
}

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	pol, err := cfg.Policy()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ===== 監査ログ =====
	var sink audit.Sink
	switch cfg.Audit.Sink {
	case "kafka":
		k := audit.NewKafkaSink(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic, logger)
		defer k.Close()
		sink = k
		log.Printf("[INFO] audit sink: kafka %s", cfg.Audit.Kafka.Topic)
	case "log":
		sink = audit.NewLogSink(logger)
	default:
		st := audit.NewStore(conn, logger)
		defer st.Close()
		sink = st
	}
	if mode == "dev" && cfg.Audit.Sink != "log" {
		sink = audit.Multi(sink, audit.NewLogSink(logger))
	}

	// ===== 通知 =====
	var notifications notifier = notify.NewLogNotifier(logger)
	if cfg.Notify.RedisAddr != "" {
		rn, err := notify.Dial(ctx, notify.RedisConfig{
			Addr:      cfg.Notify.RedisAddr,
			Password:  cfg.Notify.RedisPassword,
			Channel:   cfg.Notify.Channel,
			InboxSize: cfg.Notify.InboxSize,
		}, logger)
		if err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		defer rn.Close()
		notifications = rn
		log.Printf("[INFO] notifications via redis %s", cfg.Notify.RedisAddr)
	}

	// ===== サービス =====
	runner := db.NewRunner(conn)
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	authSvc := auth.NewService(auth.NewStore(conn), tokens,
		auth.WithAuditSink(sink),
		auth.WithLogger(logger),
	)
	if cfg.Auth.AdminID != "" {
		created, err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword)
		if err != nil {
			log.Fatalf("[ERROR] failed to bootstrap admin: %v", err)
		}
		if created {
			log.Printf("[INFO] created admin account: %s", cfg.Auth.AdminID)
		}
	}

	titleStore := titles.NewStore(conn)
	loanStore := loans.NewStore(conn)

	titleSvc := titles.NewService(titleStore, runner,
		titles.WithAuditSink(sink),
		titles.WithLogger(logger),
	)
	resSvc := reservations.NewService(reservations.NewStore(conn), titleStore, runner, pol,
		reservations.WithNotifier(notifications),
		reservations.WithAuditSink(sink),
		reservations.WithLogger(logger),
	)
	fineSvc := fines.NewService(fines.NewStore(conn), loanStore, runner, pol,
		fines.WithNotifier(notifications),
		fines.WithAuditSink(sink),
		fines.WithLogger(logger),
	)
	loanSvc := loans.NewService(loanStore, titleStore, runner, pol,
		loans.WithFineAssessor(fineSvc),
		loans.WithReservationFulfiller(resSvc),
		loans.WithCopyListener(resSvc),
		loans.WithNotifier(notifications),
		loans.WithAuditSink(sink),
		loans.WithLogger(logger),
	)
	// 在庫が戻ったら予約キューへ
	titleSvc.SetCopyListener(resSvc)
	reportSvc := reports.NewService(loanSvc, titleSvc, logger)

	// 取り置き期限切れの掃除
	go resSvc.RunSweeper(ctx, cfg.Library.SweepInterval)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))

		docs.SwaggerInfo.Version = cfg.Version
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	r.Use(audit.Middleware())

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterPublicRoutes(api, authSvc, auth.NewIPRateLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst))

	authed := api.Group("", auth.RequireAuth(tokens))
	auth.RegisterSessionRoutes(authed, authSvc)
	titles.RegisterRoutes(authed, titleSvc)
	loans.RegisterRoutes(authed, loanSvc, resSvc)
	fines.RegisterRoutes(authed, fineSvc)
	reservations.RegisterRoutes(authed, resSvc)
	notify.RegisterRoutes(authed, notifications)

	staff := authed.Group("", auth.RequireBookManager())
	titles.RegisterStaffRoutes(staff, titleSvc)
	fines.RegisterStaffRoutes(staff, fineSvc)
	reservations.RegisterStaffRoutes(staff, resSvc)
	reports.RegisterRoutes(staff, reportSvc)

	admin := authed.Group("", auth.RequireUserManager())
	auth.RegisterAdminRoutes(admin, authSvc)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "no such route"}})
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// TLS設定
	var certFile, keyFile string
	if mode == "dev" {
		//開発用
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		//本番用
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Printf("[INFO] listening on https://0.0.0.0%s", cfg.Server.Addr)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c db.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
