package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"meronepal/internal/config"
	"meronepal/internal/gateways"
	"meronepal/internal/handlers"
	"meronepal/internal/middleware"
	"meronepal/internal/models"
	"meronepal/internal/notifications"
	"meronepal/internal/repositories"
	"meronepal/internal/services"
	"meronepal/pkg/rabbitmq"
)

func main() {
	settings := config.Load()

	// --- Notification sink ---
	// The broker is a best-effort collaborator: if it is unreachable the
	// service still runs, it just stops sending emails.
	var notifier notifications.Notifier = notifications.NopNotifier{}
	var mqClient *rabbitmq.Client
	if settings.RabbitMQURL != "" {
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: settings.RabbitMQURL})
		if err != nil {
			log.Printf("Warning: RabbitMQ unavailable, notifications disabled: %v", err)
		} else {
			mqClient = client
			notifier = notifications.NewAMQPNotifier(client)
			defer mqClient.Close() // Ensure the connection is closed on exit
		}
	}

	// --- Repositories ---
	// With DATABASE_URL set the service runs against Postgres; without it
	// it falls back to the in-memory repositories with seeded products.
	var (
		productRepo repositories.ProductRepository
		orderRepo   repositories.OrderRepository
		paymentRepo repositories.PaymentRepository
		counterRepo repositories.CounterRepository
		userRepo    repositories.UserRepository
	)
	if settings.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(settings.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		err = db.AutoMigrate(
			&models.User{},
			&models.Product{},
			&models.Order{},
			&models.PaymentAttempt{},
			&models.OrderCounter{},
		)
		if err != nil {
			log.Fatalf("Failed to auto-migrate database: %v", err)
		}
		productRepo = repositories.NewGORMProductRepository(db)
		orderRepo = repositories.NewGORMOrderRepository(db)
		paymentRepo = repositories.NewGORMPaymentRepository(db)
		counterRepo = repositories.NewGORMCounterRepository(db)
		userRepo = repositories.NewGORMUserRepository(db)
	} else {
		log.Println("DATABASE_URL not set, using in-memory repositories")
		mockProducts := repositories.NewMockProductRepository()
		seedProducts(mockProducts)
		productRepo = mockProducts
		orderRepo = repositories.NewMockOrderRepository()
		paymentRepo = repositories.NewMockPaymentRepository()
		counterRepo = repositories.NewMockCounterRepository()
		// Accounts still need somewhere durable enough for a dev session.
		db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to open in-memory user database: %v", err)
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Fatalf("Failed to auto-migrate user database: %v", err)
		}
		userRepo = repositories.NewGORMUserRepository(db)
	}

	// --- Payment gateway adapters ---
	esewa := gateways.NewEsewa(gateways.EsewaConfig{
		BaseURL:     settings.EsewaBaseURL,
		ProductCode: settings.EsewaProductCode,
		SecretKey:   settings.EsewaSecretKey,
		SuccessURL:  settings.CallbackBaseURL + "/api/v1/payments/esewa/callback",
		FailureURL:  settings.WebsiteURL + "/payment/failed",
		Timeout:     settings.GatewayTimeout,
	})
	khalti := gateways.NewKhalti(gateways.KhaltiConfig{
		BaseURL:    settings.KhaltiBaseURL,
		SecretKey:  settings.KhaltiSecretKey,
		ReturnURL:  settings.CallbackBaseURL + "/api/v1/payments/khalti/callback",
		WebsiteURL: settings.WebsiteURL,
		Timeout:    settings.GatewayTimeout,
	})

	// --- Services ---
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, productRepo, counterRepo, notifier)
	paymentService := services.NewPaymentService(paymentRepo, orderRepo, orderService, esewa, khalti)
	authService := services.NewAuthService(userRepo, settings.JWTSecret)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// --- Fiber App ---
	app := fiber.New()
	app.Use(logger.New()) // Request logger

	apiV1 := app.Group("/api/v1")

	// Public routes: auth, and the provider callback (the gateway redirects
	// the buyer's browser here without our bearer token).
	authHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterCallbackRoutes(apiV1)

	// Everything registered after this point requires a valid token.
	apiV1.Use(middleware.AuthRequired(authService))
	productHandler.RegisterRoutes(apiV1)
	orderHandler.RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Notification consumer ---
	// In production this would be a separate worker process; running it
	// in-process keeps the demo self-contained.
	if mqClient != nil {
		go func() {
			log.Println("Starting RabbitMQ consumer for notifications...")
			messageHandler := func(msg amqp.Delivery) error {
				log.Printf("Dispatching notification (Tag: %d): %s", msg.DeliveryTag, string(msg.Body))
				return nil // Return nil to acknowledge
			}
			if consumerErr := mqClient.ConsumeNotifications(messageHandler); consumerErr != nil {
				log.Printf("Failed to start RabbitMQ consumer: %v", consumerErr)
			}
		}()
	}

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", settings.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(settings.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	log.Println("Server gracefully stopped")
}

// seedProducts populates the in-memory product repository with some
// approved listings so orders can be placed right away.
func seedProducts(repo repositories.ProductRepository) {
	products := []models.Product{
		{ID: "prod-1", SellerID: "seller-demo", Name: "Pashmina Shawl", Description: "Hand-woven pashmina shawl", Price: 4500.00, Stock: 10, IsActive: true, VerificationStatus: models.VerificationApproved},
		{ID: "prod-2", SellerID: "seller-demo", Name: "Singing Bowl", Description: "Seven-metal singing bowl", Price: 2750.00, Stock: 25, IsActive: true, VerificationStatus: models.VerificationApproved},
		{ID: "prod-3", SellerID: "seller-demo", Name: "Khukuri Knife", Description: "Traditional hand-forged khukuri", Price: 6200.00, Stock: 8, IsActive: true, VerificationStatus: models.VerificationApproved},
	}

	for i := range products {
		err := repo.Create(&products[i])
		if err != nil {
			log.Printf("Error seeding product %s: %v", products[i].Name, err)
		} else {
			log.Printf("Seeded product: %s (ID: %s)", products[i].Name, products[i].ID)
		}
	}
}
