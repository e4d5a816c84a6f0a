package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"lot-bulk-import/cache"
	"lot-bulk-import/common"
	"lot-bulk-import/crm"
	"lot-bulk-import/imports"
	"lot-bulk-import/wizard"
)

func main() {
	cfg := common.LoadConfig()

	// Initialize database for session audit rows and metrics
	db := common.Init(cfg.DatabasePath)
	common.AutoMigrate(db)

	// Ensure database connection is closed on exit
	sqlDB, err := db.DB()
	if err != nil {
		log.Println("Failed to get sql.DB:", err)
	} else {
		defer sqlDB.Close()
	}

	// Setup Gin router
	r := gin.Default()
	r.RedirectTrailingSlash = false
	r.Use(common.MetricsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	env := &imports.Env{
		Registry: wizard.NewRegistry(),
		CRM:      crm.NewClient(cfg.CRMBaseURL, cfg.CRMToken),
		Cache:    cache.New(),
	}

	v1 := r.Group("/api/v1")
	v1.Use(common.AuthRequired(cfg.JWTSecret))
	imports.RegisterRoutes(v1.Group("/imports"), env)
	v1.GET("/lots", env.ListLots)

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
