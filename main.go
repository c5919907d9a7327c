package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/api"
	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/config"
	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/ledger"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/notify"
	"github.com/zkpermit/zkpermit-go/reconcile"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/router"
	"github.com/zkpermit/zkpermit-go/user"
)

func main() {
	cfg := config.Load()
	logger := logging.New()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conn, err := database.Connect(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatalln("mongo connect failed:", err)
	}
	if err = conn.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatalln("index creation failed:", err)
	}
	cancel()

	users := user.NewMongoDirectory(conn)
	requests := registration.NewMongoDirectory(conn)
	projects := access.NewMongoProjectDirectory(conn)
	accessRequests := access.NewMongoRequestDirectory(conn)
	challenges := auth.NewMongoChallengeStore(conn)
	keys := auth.NewMongoKeyRegistry(conn)

	// The tree is rebuilt from the directory on every boot; the directory
	// is the durable representation.
	index, err := merkle.Load(context.Background(), users, logger)
	if err != nil {
		log.Fatalln("merkle load failed:", err)
	}

	// Development suppresses real push delivery; messages land in the log.
	var queue notify.Queue = notify.NewFCM(cfg.PushEndpoint, cfg.PushServerKey, logger)
	if cfg.Development {
		queue = notify.Log{Logger: logger}
	}

	protocol := auth.NewProtocol(challenges, keys, []byte(cfg.JWTSecret), cfg.JWTExpiry, logger)
	onboarding := registration.NewStateMachine(requests, users, index, queue, logger)
	accessSM := access.NewStateMachine(projects, accessRequests, users, keys, queue, cfg.Development, logger)

	var roles api.RoleResolver
	var source ledger.Source
	if cfg.LedgerRPC != "" {
		eth, err := ledger.DialEthSource(cfg.LedgerRPC, cfg.ContractAddress, logger)
		if err != nil {
			log.Fatalln("ledger dial failed:", err)
		}
		roles = eth
		source = eth
	}

	// The reconciler replays the full event log from genesis and then
	// keeps polling for the process lifetime.
	if source != nil {
		reconciler := reconcile.New(source, onboarding, accessSM, users, index,
			cfg.FromBlock, cfg.PollInterval, logger)
		go reconciler.Run(context.Background())
	} else {
		logger.Warn("no ledger rpc configured, mirror will not reconcile")
	}

	server := api.NewServer(cfg, protocol, onboarding, accessSM, users, requests, index, roles, logger)
	startServer(cfg, server)
}

func startServer(cfg *config.Config, server *api.Server) {
	log.Println("starting Go web server on", cfg.ListenAddr)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router.Handlers(server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Fatalln(srv.ListenAndServe())
}
