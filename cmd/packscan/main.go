package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"packscan/config"
	"packscan/engine"
	"packscan/journal"
	"packscan/messaging"
	"packscan/registry"
	"packscan/store"
	"packscan/www"
)

func main() {
	configPath := flag.String("config", "packscan.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}

	// SKU classification masters
	reg, err := registry.New(cfg.Masters.SKUMasterPath, cfg.Masters.ExtrasNoScanPath)
	if err != nil {
		log.Fatalf("load SKU masters: %v", err)
	}

	// Allocation engine over the CSV line store and picking lock
	lines := store.NewCSVStore(cfg.Store.OrdersPath)
	lock := store.NewLockFile(cfg.Store.LockPath)
	eng, err := engine.New(lines, reg, lock)
	if err != nil {
		log.Fatalf("init line store: %v", err)
	}

	// Journal: scan audit trail, outbox, admin users
	db, err := journal.Open(cfg.Store.JournalPath)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer db.Close()
	journal.AttachRecorder(db, eng.Events)

	if err := ensureAdminUser(db, &cfg.Web); err != nil {
		log.Fatalf("bootstrap admin user: %v", err)
	}

	// Messaging: print requests and scan reports go through the outbox so
	// broker downtime never blocks a scan.
	if cfg.Messaging.Enabled {
		reporter := messaging.NewReporter(db, &cfg.Messaging, cfg.StationID)
		reporter.Attach(eng.Events)

		msgClient := messaging.NewClient(&cfg.Messaging)
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (will retry via outbox)", err)
		}
		drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging)
		drainer.Start()
		defer drainer.Stop()
	}

	// HTTP server
	router, stopWeb := www.NewRouter(eng, db, &cfg.Web)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("packscan station %s listening on %s", cfg.StationID, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}

// ensureAdminUser creates the configured admin account on first run. The
// plaintext bootstrap password never leaves the config file; only the
// bcrypt hash is stored.
func ensureAdminUser(db *journal.DB, web *config.WebConfig) error {
	exists, err := db.AdminUserExists()
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	password := web.AdminPassword
	if password == "" {
		password = "changeme"
		log.Printf("no admin_password configured; using default (change it)")
	}
	hash, err := www.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := db.CreateAdminUser(web.AdminUser, hash); err != nil {
		return err
	}
	log.Printf("created admin user %q", web.AdminUser)
	return nil
}
