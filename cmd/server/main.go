package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cellworlds/internal/account"
	"cellworlds/internal/api"
	"cellworlds/internal/config"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"
	"cellworlds/internal/stats"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🌍 ================================")
	log.Println("🌍  CELLWORLDS - GAME SERVER")
	log.Println("🌍 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	port := strconv.Itoa(appConfig.Server.Port)

	// Account store with optional admin seed
	store := account.NewMemoryStore()
	if appConfig.Admin.Username != "" {
		if _, err := store.CreateUser(appConfig.Admin.Username, appConfig.Admin.Password, true); err != nil {
			log.Printf("⚠️ Admin seed failed: %v", err)
		} else {
			log.Printf("🔐 Admin account seeded: %s", appConfig.Admin.Username)
		}
	} else {
		log.Println("⚠️ ADMIN_USERNAME not set - no admin account")
	}

	// Message hub for config and stats updates
	bus := pubsub.NewHub()

	// Snapshot persistence
	repo, err := game.NewSnapshotRepository(appConfig.Snapshot.Dir)
	if err != nil {
		log.Fatalf("Failed to open snapshot dir %s: %v", appConfig.Snapshot.Dir, err)
	}
	log.Printf("💾 Snapshots: %s", appConfig.Snapshot.Dir)

	// World manager; defaults are refined by the gameplay config service
	manager := game.NewManager(game.WorldConfig{
		Width:            account.DefaultWidth,
		Height:           account.DefaultHeight,
		TickRate:         account.DefaultTickRate,
		FoodCount:        account.DefaultFoodCount,
		SnapshotInterval: account.DefaultSnapshotInterval,
	}, repo)

	// Stats service
	statsService := stats.NewService(store, bus)

	// Domain event log
	eventLog := game.NewEventLog()
	eventLogPath := os.Getenv("EVENT_LOG_PATH")
	if eventLogPath == "" {
		eventLogPath = "events.jsonl"
	}
	if err := eventLog.Start(eventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	} else {
		log.Printf("📝 Event log: %s", eventLogPath)
		manager.RegisterEventListener(func(worldID string, event game.Event) {
			eventLog.Emit(worldID, event)
		})
	}

	// Start debug server
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	// Gameplay config service: loads the stored config, applies it to the
	// manager and relays admin updates to connected clients.
	gameplay := config.NewGameplayService(store, manager, bus)
	if err := gameplay.Start(); err != nil {
		log.Fatalf("Failed to start gameplay config service: %v", err)
	}

	// API server
	server := api.NewServer(api.ServerDeps{
		Store:   store,
		Manager: manager,
		Config:  gameplay,
		Bus:     bus,
		Stats:   statsService,
	})
	gameplay.SetBroadcaster(func(cfg account.GameplayConfig) {
		server.Hub().BroadcastGlobal(api.ConfigUpdateMessage{
			Type:   api.MsgConfigUpdate,
			Config: cfg,
		})
	})

	// Elimination events reach the loser before their socket closes
	manager.RegisterEventListener(func(worldID string, event game.Event) {
		if event.Type != game.EventPlayerEliminated {
			return
		}
		log.Printf("☠️ %s eliminated by %s in world %s", event.LoserName, event.WinnerName, worldID)
		server.Hub().SendTo(worldID, event.LoserID, api.EliminatedMessage{
			Type:  api.MsgEliminated,
			By:    event.WinnerName,
			World: worldID,
		})
		server.Hub().CloseWithCode(worldID, event.LoserID, api.CloseEliminated, "Eliminated")
	})

	// Default world so clients can join without creating one first
	if _, err := manager.CreateWorld("main", game.WorldConfig{Name: "main"}); err != nil {
		log.Printf("⚠️ Default world creation failed: %v", err)
	}

	// Start API server in goroutine
	go func() {
		addr := ":" + port
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	gameplay.Stop()
	server.Stop()
	manager.Shutdown()
	eventLog.Stop()
	log.Println("👋 Goodbye!")
}
