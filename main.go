package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"kindling_server/config"
	"kindling_server/metrics"
	"kindling_server/routes"
	"kindling_server/services"
	"kindling_server/socket"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Realtime server; pushes target per-user rooms.
	socketServer := socket.NewServer()
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("❌ Socket server failed: %v", err)
		}
	}()
	defer socketServer.Close()
	notifier := &services.SocketNotifier{Server: socketServer}

	// Initialize Services
	ledgerService := &services.LedgerService{Dynamo: dynamoService}
	conversationService := &services.ConversationService{
		Dynamo:          dynamoService,
		Notifier:        notifier,
		DecisionWindow:  cfg.DecisionWindow,
		CountdownWindow: cfg.CountdownWindow,
		GraceWindow:     cfg.GraceWindow,
	}
	datePlanService := &services.DatePlanService{
		Dynamo:        dynamoService,
		Conversations: conversationService,
		Notifier:      notifier,
		CreditCents:   cfg.DateCreditCents,
	}
	verificationService := &services.VerificationService{
		Dynamo:        dynamoService,
		Ledger:        ledgerService,
		Plans:         datePlanService,
		Conversations: conversationService,
		Notifier:      notifier,
		TokenTTL:      cfg.TokenTTL,
		SessionTTL:    cfg.SessionTTL,
		CreditCents:   cfg.DateCreditCents,
	}
	purchaseService := &services.PurchaseService{
		Dynamo:         dynamoService,
		Ledger:         ledgerService,
		CreditProducts: cfg.CreditProductIDs,
		CreditCents:    cfg.DateCreditCents,
	}
	sweeperService := &services.SweeperService{
		Dynamo:             dynamoService,
		Ledger:             ledgerService,
		Plans:              datePlanService,
		Notifier:           notifier,
		ExpiryWarning:      cfg.ExpiryWarning,
		VerificationWindow: cfg.VerificationWindow,
	}

	// Background lifecycle sweeper
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweeperService.Run(sweepCtx, cfg.SweepInterval)

	// Initialize the router
	r := mux.NewRouter()

	// Register a welcome route
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to Kindling")
	}).Methods("GET")

	// Register a health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.Handle("/socket.io/", socketServer)

	// Register routes
	routes.RegisterConversationRoutes(r, conversationService, sweeperService)
	routes.RegisterDatePlanRoutes(r, datePlanService)
	routes.RegisterVerificationRoutes(r, verificationService)
	routes.RegisterWalletRoutes(r, ledgerService)
	routes.RegisterPurchaseRoutes(r, purchaseService, cfg.WebhookSecret)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, corsHandler))
}
