package main

import (
	"context"

	_ "pmo-backend/api/swagger" // swagger docs
	"pmo-backend/internal/config"
	"pmo-backend/internal/database"
	"pmo-backend/internal/handler"
	"pmo-backend/internal/middleware"
	"pmo-backend/internal/repository"
	"pmo-backend/internal/service"
	"pmo-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           PMO Change Governance API
// @version         1.0
// @description     Change-request intake, multi-step approval chains, delegation and governance timeline for project management offices.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		logrus.Info("no configs/.env file found, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	logrus.Info("connected to PostgreSQL")

	// Permission middleware needs a DB handle for role lookups
	middleware.InitPermissionMiddleware(db)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	crRepo := repository.NewChangeRequestRepository(db)
	chainRepo := repository.NewApprovalChainRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)
	txManager := repository.NewTransactionManager(db)

	notifier := service.NewEventNotifier(timelineRepo, wsHub)

	userService := service.NewUserService(userRepo)
	roleService := service.NewRoleService(db)
	crService := service.NewChangeRequestService(crRepo, chainRepo, timelineRepo, txManager)
	approvalService := service.NewApprovalService(crRepo, chainRepo, decisionRepo, delegationRepo, notifier, cfg.DecisionColumns)
	delegationService := service.NewDelegationService(delegationRepo, chainRepo, timelineRepo)
	timelineService := service.NewTimelineService(timelineRepo)

	if err := roleService.SeedDefaultRolesAndPermissions(context.Background()); err != nil {
		logrus.WithError(err).Warn("failed to seed default roles and permissions")
	}

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	roleHandler := handler.NewRoleHandler(roleService)
	crHandler := handler.NewChangeRequestHandler(crService, approvalService)
	delegationHandler := handler.NewDelegationHandler(delegationService)
	timelineHandler := handler.NewTimelineHandler(timelineService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigin
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))
	crHandler.RegisterRoutes(router.Group(""))
	delegationHandler.RegisterRoutes(router.Group(""))
	timelineHandler.RegisterRoutes(router.Group(""))

	logrus.Infof("server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}
