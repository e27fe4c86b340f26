package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/dobrv4er/woomfit/internal/auth"
	"github.com/dobrv4er/woomfit/internal/config"
	"github.com/dobrv4er/woomfit/internal/loyalty"
	"github.com/dobrv4er/woomfit/internal/membership"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/order"
	"github.com/dobrv4er/woomfit/internal/payment"
	"github.com/dobrv4er/woomfit/internal/rent"
	"github.com/dobrv4er/woomfit/internal/schedule"
	"github.com/dobrv4er/woomfit/internal/tbank"
	"github.com/dobrv4er/woomfit/internal/user"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	db       *sqlx.DB
	config   *config.Config
	notifier *notify.Service
}

func New(db *sqlx.DB, cfg *config.Config, notifier *notify.Service) *Server {
	registerValidations()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	gateway := tbank.NewClient(cfg.TBankBaseURL, cfg.TBankTerminalKey, cfg.TBankPassword)

	walletStore := wallet.NewRepository(db)
	loyaltySvc := loyalty.NewService(db, walletStore)
	scheduleSvc := schedule.NewService(db, notifier)
	rentSvc := rent.NewService(db, cfg, walletStore, loyaltySvc, notifier, gateway)
	orderSvc := order.NewService(db, cfg, walletStore, loyaltySvc, notifier, gateway)
	paymentSvc := payment.NewService(db, cfg, scheduleSvc, walletStore, loyaltySvc, orderSvc, rentSvc, notifier, gateway)

	// сразу после регистрации у клиента есть кошелёк и профиль лояльности
	userHandler := user.NewHandler(db, cfg.JWTSecret, func(ctx context.Context, userID int) error {
		if _, err := walletStore.GetOrCreate(ctx, userID); err != nil {
			return err
		}
		return loyaltySvc.Repo().EnsureProfile(ctx, userID)
	})
	walletHandler := wallet.NewHandler(db, notifier)
	loyaltyHandler := loyalty.NewHandler(loyaltySvc)
	membershipHandler := membership.NewHandler(db)
	scheduleHandler := schedule.NewHandler(scheduleSvc)
	rentHandler := rent.NewHandler(rentSvc)
	orderHandler := order.NewHandler(orderSvc)
	paymentHandler := payment.NewHandler(paymentSvc)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.Refresh)
	}

	// вебхук банка без авторизации: его подлинность проверяет токен подписи
	router.POST("/api/payments/tbank/webhook", paymentHandler.TBankWebhook)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	optionalAuth := auth.OptionalAuthMiddleware(cfg.JWTSecret)

	// аренда зала открыта и для внешних арендаторов без аккаунта
	rentGroup := router.Group("/api/rent")
	rentGroup.Use(optionalAuth)
	{
		rentGroup.GET("/grid", rentHandler.GetWeekGrid)
		rentGroup.POST("/reserve", rentHandler.Reserve)
		rentGroup.GET("/intents/:id", rentHandler.GetMyIntent)
	}

	protected := router.Group("/api")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/schedule", scheduleHandler.GetDaySchedule)
		protected.POST("/sessions/:id/book", scheduleHandler.Book)
		protected.POST("/sessions/:id/waitlist", scheduleHandler.JoinWaitlist)
		protected.POST("/sessions/:id/buy", paymentHandler.BuySession)
		protected.GET("/bookings", scheduleHandler.ListMyBookings)
		protected.POST("/bookings/:id/cancel", scheduleHandler.Cancel)
		protected.POST("/bookings/:id/invite/accept", scheduleHandler.AcceptInvite)
		protected.POST("/bookings/:id/invite/decline", scheduleHandler.DeclineInvite)

		protected.GET("/memberships", membershipHandler.ListMine)
		protected.GET("/memberships/bookable", membershipHandler.ListBookable)

		protected.GET("/wallet", walletHandler.GetBalance)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)

		protected.GET("/loyalty", loyaltyHandler.GetProfile)
		protected.GET("/loyalty/bonuses", loyaltyHandler.ListBonuses)
		protected.GET("/loyalty/payment-plan", loyaltyHandler.GetPaymentPlan)

		protected.GET("/products", orderHandler.ListProducts)
		protected.POST("/orders", orderHandler.Checkout)
		protected.GET("/orders", orderHandler.ListMyOrders)
		protected.GET("/orders/:id", orderHandler.GetOrder)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/trainers", scheduleHandler.AdminCreateTrainer)
		admin.POST("/workouts", scheduleHandler.AdminCreateWorkout)
		admin.POST("/sessions", scheduleHandler.AdminCreateSession)
		admin.POST("/bookings/:id/attendance", scheduleHandler.AdminMarkAttendance)

		admin.POST("/memberships", membershipHandler.AdminGrant)

		admin.POST("/wallet/topup", walletHandler.AdminTopup)
		admin.POST("/wallet/debit", walletHandler.AdminDebit)

		admin.POST("/products", orderHandler.AdminCreateProduct)
		admin.POST("/orders/:id/revoke", orderHandler.AdminRevokeOrder)

		admin.GET("/test-notify", TestNotify(notifier))
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router:   router,
		db:       db,
		config:   cfg,
		notifier: notifier,
	}
}

func (s *Server) Start(port string) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
