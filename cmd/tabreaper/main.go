package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmorozov/tabreaper/internal/api"
	"github.com/kmorozov/tabreaper/internal/browser"
	"github.com/kmorozov/tabreaper/internal/chrome"
	"github.com/kmorozov/tabreaper/internal/ledger"
	"github.com/kmorozov/tabreaper/internal/lifecycle"
	"github.com/kmorozov/tabreaper/internal/observer"
	"github.com/kmorozov/tabreaper/internal/proxy"
	"github.com/kmorozov/tabreaper/internal/ratelimit"
	"github.com/kmorozov/tabreaper/internal/settings"
	"github.com/kmorozov/tabreaper/internal/store"
	"github.com/kmorozov/tabreaper/internal/sweep"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting tabreaper...")

	addr := envOr("TABREAPER_ADDR", ":8421")
	browserURL := envOr("TABREAPER_BROWSER_URL", "http://localhost:9222")
	stateDir := envOr("TABREAPER_STATE_DIR", "./storage")
	interval := envDuration("TABREAPER_SWEEP_INTERVAL", sweep.DefaultInterval)
	hostFallback := os.Getenv("TABREAPER_HOST_FALLBACK") == "true"

	// Optionally launch a managed browser to attach to
	var launcher *browser.Launcher
	if os.Getenv("TABREAPER_LAUNCH_BROWSER") == "true" {
		var err error
		launcher, err = browser.NewLauncher(envOr("TABREAPER_PROFILE_DIR", ""))
		if err != nil {
			log.Fatalf("Failed to create browser launcher: %v", err)
		}
		defer launcher.Close()

		launchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		log.Println("⏳ Ensuring browser image is available...")
		if err := launcher.EnsureImage(launchCtx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure browser image: %v", err)
		}

		instance, err := launcher.Launch(launchCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to launch browser: %v", err)
		}
		browserURL = instance.ConnectURL
		log.Printf("✓ Managed browser running on port %s", instance.Port)

		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := launcher.Stop(stopCtx, instance.ContainerID); err != nil {
				log.Printf("⚠️ Failed to stop managed browser: %v", err)
			}
		}()
	}

	// Attach to the browser
	tabHost := chrome.NewClient(browserURL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tabHost.Ping(pingCtx); err != nil {
		cancel()
		log.Fatalf("Failed to attach to browser: %v", err)
	}
	cancel()
	log.Printf("✓ Attached to browser at %s", browserURL)

	// Durable state: the access-time ledger and the settings document
	ledgerDoc, err := store.NewFileStore(stateDir, "ledger.json")
	if err != nil {
		log.Fatalf("Failed to create ledger store: %v", err)
	}
	settingsDoc, err := store.NewFileStore(stateDir, "settings.json")
	if err != nil {
		log.Fatalf("Failed to create settings store: %v", err)
	}

	accessLedger := ledger.New(ledgerDoc)
	defer accessLedger.Close()
	settingsStore := settings.NewStore(settingsDoc)
	log.Printf("✓ State directory ready at %s", stateDir)

	// Core engine
	scheduler := sweep.New(tabHost, accessLedger, settingsStore, sweep.Options{
		Interval:        interval,
		UseHostFallback: hostFallback,
		PruneOnSweep:    true,
	})
	eventObserver := observer.New(tabHost, accessLedger)
	controller := lifecycle.New(accessLedger, eventObserver, scheduler)

	// HTTP surface for the settings UI
	proxyServer := proxy.NewServer(tabHost)
	rateLimiter := ratelimit.NewLimiter(60, 10)
	handler := api.NewHandler(controller, settingsStore, tabHost, accessLedger, hostFallback)
	router := handler.SetupRoutes(proxyServer, rateLimiter)
	log.Println("✓ HTTP routes configured")

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := controller.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start controller: %v", err)
	}
	log.Printf("✓ Sweep engine running (interval %s)", interval)

	go func() {
		log.Printf("🚀 API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server forced to shutdown: %v", err)
	}
	if err := controller.Stop(); err != nil {
		log.Printf("⚠️ Controller shutdown: %v", err)
	}

	log.Println("✅ Stopped cleanly")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid %s %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
