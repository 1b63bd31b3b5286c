package main

import (
	"log"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"bookhaven/analytics"
	"bookhaven/auth"
	"bookhaven/cache"
	"bookhaven/common"
	"bookhaven/database"
	"bookhaven/email"
	"bookhaven/shop"
)

const sessionName = "bookhaven-session"

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	db := common.ConnectDb(cfg)
	if db == nil {
		log.Fatal("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	router := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})

	router.Use(sessions.Sessions(sessionName, store))
	router.Use(cache.Middleware(10*time.Minute, sessionName))

	router.LoadHTMLGlob("*/views/*.html")
	router.Static("/public", "./public")

	analyticsModule := analytics.NewAnalyticsModule(common.ConnectAnalyticsDb(cfg))
	mailer := email.NewEmailService(cfg)

	authModule := auth.NewAuthModule(db)
	authModule.RegisterRoutes(router)

	shopModule := shop.NewShopModule(db, analyticsModule, mailer)
	shopModule.RegisterRoutes(router)

	log.Printf("Starting server on port %s...", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
