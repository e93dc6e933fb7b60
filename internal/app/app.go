package app

import (
	"net/http"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/auth"
	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/config"
	"stayvest-backend/internal/constants"
	"stayvest-backend/internal/database"
	"stayvest-backend/internal/documents"
	"stayvest-backend/internal/emails"
	"stayvest-backend/internal/health"
	"stayvest-backend/internal/investors"
	"stayvest-backend/internal/middleware"
	"stayvest-backend/internal/ownerships"
	"stayvest-backend/internal/payments"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/uploads"
	"stayvest-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route registration.
// Vercel will invoke the returned handler via adaptor.
func CreateApp(cfg *config.Config) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Payment provider callbacks are mounted before the session middleware:
	// both verify a signature over the raw body and carry no session.
	// DB/services are set after database init below.
	stripeWebhook := &payments.StripeWebhookHandler{WebhookSecret: cfg.StripeWebhookSecret}
	app.Post("/api/v1/stripe/webhook", func(c *fiber.Ctx) error {
		return stripeWebhook.HandleWebhook(c)
	})

	depaySigner, err := payments.NewDePaySigner(cfg.DePayPublicKey, cfg.DePayPrivateKey)
	if err != nil {
		return nil, err
	}
	depayHandler := &payments.DePayHandler{Signer: depaySigner, Receiver: cfg.DePayReceiver}
	app.Post("/api/v1/depay/callback", func(c *fiber.Ctx) error {
		return depayHandler.HandleCallback(c)
	})
	app.Post("/api/v1/depay/config", func(c *fiber.Ctx) error {
		return depayHandler.HandleConfig(c)
	})

	// Session (Redis); need Redis client for health marker too
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, err
	}
	app.Use(sessionHandler)

	// Health request marker (after session)
	app.Use(middleware.HealthMarker(rdb))

	// Response formatter (inject helpers)
	app.Use(middleware.ResponseFormatter())

	// Tracing + route logger
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	// --- Routes (no auth) ---
	// Health module (GET /, GET /reset, GET /health/json, GET /health/errors)
	healthHandlers := &health.Handlers{
		Rdb:            rdb,
		DB:             nil, // optional; wire when DB is available
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", healthHandlers.Dashboard)
	app.Get("/reset", healthHandlers.Reset)
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/errors", healthHandlers.Errors)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, errDB
		}
	}

	// Auth (no auth middleware): POST login, GET me, DELETE logout.
	// db may be nil if DATABASE_URL not set (e.g. tests); Login will return 500.
	var userFinder auth.UserFinder
	if db != nil {
		userFinder = &auth.GormUserFinder{DB: db}
	}
	authHandlers := &auth.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// --- Modules needing the database ---
	if db != nil && rdb != nil {
		notifier := &emails.BrevoClient{
			APIKey:   cfg.SendinblueAPIKey,
			MailFrom: cfg.MailFrom,
		}
		documentsService := &documents.Service{DB: db, Generator: &documents.StubGenerator{}}
		settlementService := &settlement.Service{
			DB:        db,
			Notifier:  notifier,
			Documents: documentsService,
		}
		usersService := &users.Service{DB: db}
		affiliatesService := &affiliates.Service{DB: db}
		collectionsService := &collections.Service{DB: db}

		// Provider callbacks, declared above the session middleware, get
		// their dependencies here.
		stripeWebhook.DB = db
		stripeWebhook.Settlement = settlementService
		stripeWebhook.Users = usersService
		stripeWebhook.Affiliates = affiliatesService
		depayHandler.DB = db
		depayHandler.Settlement = settlementService
		depayHandler.Users = usersService
		depayHandler.Affiliates = affiliatesService
		depayHandler.Collections = collectionsService

		// User module
		usersHandlers := &users.Handlers{Service: usersService, Rdb: rdb, Config: sessionCfg}
		userGroup := app.Group("/api/v1/users")
		userGroup.Post("/create-user", usersHandlers.CreateUser)
		userGroup.Get("/view-user", middleware.RequireAuth(), usersHandlers.ViewUser)
		userGroup.Patch("/update-role", middleware.RequireAuth(), middleware.AuthorizePermission(constants.AssignRole), usersHandlers.UpdateRole)

		// Collections: public browse, admin management
		collectionsHandlers := &collections.Handlers{Service: collectionsService}
		app.Get("/api/v1/collections", collectionsHandlers.ListActive)
		app.Get("/api/v1/collections/:slug", collectionsHandlers.GetBySlug)
		adminCollections := app.Group("/api/v1/admin/collections", middleware.RequireAuth())
		adminCollections.Post("/", middleware.AuthorizePermission(constants.ManageCollections), collectionsHandlers.CreateCollection)
		adminCollections.Delete("/:collection_id", middleware.AuthorizePermission(constants.ManageCollections), collectionsHandlers.DeleteCollection)
		adminCollections.Post("/:collection_id/units", middleware.AuthorizePermission(constants.ManageUnits), collectionsHandlers.CreateUnit)
		adminCollections.Post("/:collection_id/tiers", middleware.AuthorizePermission(constants.ManageTiers), collectionsHandlers.CreateTier)

		// Purchases: guest-friendly, no auth required. Session identity is
		// attached when present.
		checkoutService := &payments.CheckoutService{
			DB:          db,
			Collections: collectionsService,
			Stripe:      &payments.RealStripeCreator{SecretKey: cfg.StripeSecretKey},
			SuccessURL:  cfg.CheckoutSuccessURL,
			CancelURL:   cfg.CheckoutCancelURL,
		}
		manualService := &payments.ManualService{
			DB:          db,
			Collections: collectionsService,
			Settlement:  settlementService,
			Users:       usersService,
			Affiliates:  affiliatesService,
			Bank: payments.BankDetails{
				AccountName:   cfg.BankAccountName,
				AccountNumber: cfg.BankAccountNumber,
				BankName:      cfg.BankName,
			},
		}
		paymentsHandlers := &payments.Handlers{Checkout: checkoutService, Manual: manualService}
		purchaseGroup := app.Group("/api/v1/purchases")
		purchaseGroup.Post("/stripe/checkout", paymentsHandlers.CreateStripeCheckout)
		purchaseGroup.Post("/manual/initiate", paymentsHandlers.InitiateManual)
		purchaseGroup.Post("/manual/submit-proof", paymentsHandlers.SubmitManualProof)

		// Manual payment review queue (admin)
		manualAdmin := app.Group("/api/v1/admin/manual-payments", middleware.RequireAuth())
		manualAdmin.Get("/pending", middleware.AuthorizePermission(constants.ViewPayments), paymentsHandlers.ListPendingManual)
		manualAdmin.Post("/:reference/approve", middleware.AuthorizePermission(constants.ApproveManualPayment), paymentsHandlers.ApproveManual)
		manualAdmin.Post("/:reference/reject", middleware.AuthorizePermission(constants.ApproveManualPayment), paymentsHandlers.RejectManual)

		// Staff ownership entries + admin approval queue
		ownershipsService := &ownerships.Service{DB: db}
		ownershipsHandlers := &ownerships.Handlers{Service: ownershipsService}
		staffGroup := app.Group("/api/v1/staff", middleware.RequireAuth())
		staffGroup.Post("/ownership-entries", middleware.AuthorizePermission(constants.SubmitOwnershipEntry), ownershipsHandlers.SubmitEntry)
		entriesAdmin := app.Group("/api/v1/admin/ownership-entries", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ApproveOwnership))
		entriesAdmin.Get("/pending", ownershipsHandlers.ListPending)
		entriesAdmin.Post("/:ownership_id/approve", ownershipsHandlers.Approve)
		entriesAdmin.Post("/:ownership_id/reject", ownershipsHandlers.Reject)
		entriesAdmin.Post("/:ownership_id/revoke", ownershipsHandlers.Revoke)

		// Investors module
		investorsService := &investors.Service{DB: db}
		investorsHandlers := &investors.Handlers{Service: investorsService}
		app.Get("/api/v1/investors/portfolio", middleware.RequireAuth(), investorsHandlers.GetMyPortfolio)
		investorsAdmin := app.Group("/api/v1/admin/investors", middleware.RequireAuth())
		investorsAdmin.Get("/reconcile", middleware.AuthorizePermission(constants.RunReconciliation), investorsHandlers.Reconcile)
		investorsAdmin.Get("/:user_id/portfolio", middleware.AuthorizePermission(constants.ViewData), investorsHandlers.GetPortfolio)

		// Affiliates: public click tracking, admin management
		affiliatesHandlers := &affiliates.Handlers{Service: affiliatesService}
		app.Post("/api/v1/affiliates/track-click", affiliatesHandlers.TrackClick)
		affiliatesAdmin := app.Group("/api/v1/admin/affiliates", middleware.RequireAuth())
		affiliatesAdmin.Post("/", middleware.AuthorizePermission(constants.ManageAffiliates), affiliatesHandlers.CreateProfile)
		affiliatesAdmin.Post("/:profile_id/links", middleware.AuthorizePermission(constants.ManageAffiliates), affiliatesHandlers.CreateLink)
		affiliatesAdmin.Post("/commissions/:transaction_id/mark-paid", middleware.AuthorizePermission(constants.MarkCommissionPaid), affiliatesHandlers.MarkPaid)
		affiliatesAdmin.Get("/reconcile", middleware.AuthorizePermission(constants.RunReconciliation), affiliatesHandlers.Reconcile)

		// Documents module
		documentsHandlers := &documents.Handlers{Service: documentsService}
		documentsGroup := app.Group("/api/v1/documents", middleware.RequireAuth())
		documentsGroup.Get("/ownership/:ownership_id", documentsHandlers.ListForOwnership)
		documentsGroup.Post("/:document_id/sign", documentsHandlers.Sign)

		// Uploads module (signed Supabase upload URLs)
		supabaseClient := &uploads.HTTPClient{
			BaseURL:   cfg.SupabaseURL,
			SecretKey: cfg.SupabaseSecretKey,
		}
		uploadService := &uploads.Service{
			Client:      supabaseClient,
			SupabaseURL: cfg.SupabaseURL,
		}
		uploadHandlers := &uploads.Handlers{Service: uploadService}
		uploadGroup := app.Group("/api/v1/uploads", middleware.RequireAuth())
		uploadGroup.Post("/payment-proof", uploadHandlers.UploadPaymentProof)
		uploadGroup.Post("/document", uploadHandlers.UploadDocument)
	} else {
		log.Warn().Msg("Database or Redis unavailable, only health and auth routes mounted")
	}

	return app, nil
}

// Handler returns an http.Handler for Vercel (Fiber app as net/http handler).
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
