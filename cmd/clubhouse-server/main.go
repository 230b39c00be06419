package main

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stridelab/clubhouse/pkg/clubhouse/auth"
	"github.com/stridelab/clubhouse/pkg/clubhouse/backfill"
	"github.com/stridelab/clubhouse/pkg/clubhouse/cache"
	"github.com/stridelab/clubhouse/pkg/clubhouse/clubs"
	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/events"
	"github.com/stridelab/clubhouse/pkg/clubhouse/members"
)

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("CLUBHOUSE_DB_PATH")
	if dbPath == "" {
		dbPath = "clubhouse.db"
	}

	store, err := docstore.OpenSQLite(dbPath)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}

	// Optional member-count display cache
	var counts *cache.MemberCounts
	if addr := os.Getenv("CLUBHOUSE_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("CLUBHOUSE_REDIS_PASSWORD"),
		})
		counts = cache.NewMemberCounts(rdb)
		log.Printf("Member count cache enabled via redis at %s", addr)
	}

	// Optional membership event stream
	var publisher events.Publisher = events.Nop{}
	if brokers := os.Getenv("CLUBHOUSE_KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("CLUBHOUSE_KAFKA_TOPIC")
		if topic == "" {
			topic = "clubhouse.membership"
		}
		kp := events.NewKafkaPublisher(strings.Split(brokers, ","), topic)
		defer kp.Close()
		publisher = kp
		log.Printf("Membership events enabled on topic %s", topic)
	}

	ledger := members.NewService(store,
		members.WithEvents(publisher),
		members.WithCountCache(counts),
	)
	registry := clubs.NewService(store)

	engineOpts := []backfill.Option{backfill.WithCountCache(counts)}
	if raw := os.Getenv("CLUBHOUSE_BACKFILL_CHUNK_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid CLUBHOUSE_BACKFILL_CHUNK_SIZE %q: %v", raw, err)
		}
		engineOpts = append(engineOpts, backfill.WithChunkSize(size))
	}
	engine, err := backfill.NewEngine(store, engineOpts...)
	if err != nil {
		log.Fatalf("Failed to configure backfill engine: %v", err)
	}

	credentials, err := loadCredentials()
	if err != nil {
		log.Fatalf("Failed to load API credentials: %v", err)
	}

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Token exchange (public)
		authHandler := auth.NewHandler(credentials)
		authHandler.RegisterRoutes(api.Group("/auth"))

		clubsHandler := clubs.NewHandler(registry, ledger, counts)
		membersHandler := members.NewHandler(ledger)

		clubsGroup := api.Group("/clubs", auth.AuthMiddleware())
		clubsHandler.RegisterRoutes(clubsGroup)
		membersHandler.RegisterRoutes(clubsGroup)

		creatorsGroup := api.Group("/creators", auth.AuthMiddleware())
		clubsHandler.RegisterCreatorRoutes(creatorsGroup)

		usersGroup := api.Group("/users", auth.AuthMiddleware())
		membersHandler.RegisterUserRoutes(usersGroup)

		// Admin routes (admin role required)
		backfillHandler := backfill.NewHandler(engine)
		adminGroup := api.Group("/admin", auth.AuthMiddleware(), auth.RequireAdmin())
		backfillHandler.RegisterRoutes(adminGroup)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting clubhouse server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadCredentials reads the configured API callers. Secrets arrive as plain
// env values and are hashed at startup; only the hashes stay in memory.
func loadCredentials() ([]auth.Credential, error) {
	type pair struct {
		idVar, secretVar, role, defaultID, defaultSecret string
	}
	pairs := []pair{
		{"CLUBHOUSE_API_CLIENT_ID", "CLUBHOUSE_API_CLIENT_SECRET", auth.RoleService, "clubhouse-api", "changeme"},
		{"CLUBHOUSE_ADMIN_CLIENT_ID", "CLUBHOUSE_ADMIN_CLIENT_SECRET", auth.RoleAdmin, "clubhouse-admin", "changeme-admin"},
	}

	var credentials []auth.Credential
	for _, p := range pairs {
		clientID := os.Getenv(p.idVar)
		if clientID == "" {
			clientID = p.defaultID
		}
		secret := os.Getenv(p.secretVar)
		if secret == "" {
			// Default for development only - should be set in production
			secret = p.defaultSecret
			log.Printf("Using default secret for %s (set %s in production)", clientID, p.secretVar)
		}
		hash, err := auth.HashPassword(secret)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, auth.Credential{
			ClientID:   clientID,
			SecretHash: hash,
			Role:       p.role,
		})
	}
	return credentials, nil
}
