package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/capsim/backend/src/config"
	"github.com/username/capsim/backend/src/database"
	"github.com/username/capsim/backend/src/engine"
	"github.com/username/capsim/backend/src/handlers"
	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/security"
	"github.com/username/capsim/backend/src/services"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}
		if config.Cfg.FrontendBaseURL != "" {
			allowedOrigins[config.Cfg.FrontendBaseURL] = true
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("CapSim backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	cacheTTL := config.Cfg.SimulationCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = services.DefaultCacheExpiration
	}
	reportCache := cache.New(cacheTTL, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	simEngine := engine.New()

	projectService := services.NewProjectService(database.DB, reportCache)
	simulationService := services.NewSimulationService(database.DB, simEngine, reportCache)

	userHandler := handlers.NewUserHandler(authService)
	projectHandler := handlers.NewProjectHandler(projectService)
	txHandler := handlers.NewTransactionHandler(projectService)
	simulationHandler := handlers.NewSimulationHandler(simulationService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "CapSim Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Get("/auth/csrf", handlers.GetCSRFToken)
		})

		// Authentication routes (CSRF protected)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
		})

		// Protected routes (require auth and CSRF)
		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(userHandler.AuthMiddleware)

			r.Get("/user/profile", userHandler.HandleGetProfile)

			r.Get("/projects", projectHandler.HandleListProjects)
			r.Post("/projects", projectHandler.HandleCreateProject)
			r.Post("/projects/import", projectHandler.HandleImportProject)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Get("/", projectHandler.HandleGetProject)
				r.Put("/", projectHandler.HandleUpdateProject)
				r.Delete("/", projectHandler.HandleDeleteProject)
				r.Get("/export", projectHandler.HandleExportProject)

				r.Get("/stakeholders", projectHandler.HandleListStakeholders)
				r.Post("/stakeholders", projectHandler.HandleCreateStakeholder)
				r.Put("/stakeholders/{stakeholderID}", projectHandler.HandleRenameStakeholder)

				r.Get("/transactions", txHandler.HandleListTransactions)
				r.Post("/transactions", txHandler.HandleAddTransaction)
				r.Put("/transactions/{transactionID}", txHandler.HandleUpdateTransaction)
				r.Delete("/transactions/{transactionID}", txHandler.HandleDeleteTransaction)

				r.Get("/simulations/captable", simulationHandler.HandleGetCapTable)
				r.Get("/simulations/waterfall", simulationHandler.HandleGetWaterfall)
				r.Get("/simulations/voting", simulationHandler.HandleGetVoting)
				r.Get("/simulations/total-capitalization", simulationHandler.HandleGetTotalCapitalization)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
