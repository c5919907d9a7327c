// Package config holds runtime settings for the permission mirror service.
// Everything is read from the environment with development defaults, the
// same way the sync daemon expects PLANARIA-style env configuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every knob the process needs. It is loaded once in main
// and passed explicitly into each component.
type Config struct {
	// MongoURL is the connection string for the mirror database.
	MongoURL string

	// DatabaseName is the mongo database holding all collections.
	DatabaseName string

	// ListenAddr is the bind address for the HTTP surface.
	ListenAddr string

	// LedgerRPC is the JSON-RPC endpoint of the Ethereum node.
	LedgerRPC string

	// ContractAddress is the permission contract emitting the events.
	ContractAddress string

	// FromBlock is the replay cursor origin. 0 means full replay from
	// genesis, which is the normal mode of operation.
	FromBlock uint64

	// PollInterval is the pause between ledger polls once caught up.
	PollInterval time.Duration

	// JWTSecret signs session tokens (HS256).
	JWTSecret string

	// JWTExpiry bounds session token lifetime. Expiry is the only token
	// invalidation mechanism; there is no revocation list.
	JWTExpiry time.Duration

	// Development switches project fan-out to synchronous, in-order
	// creation, disables push delivery and relaxes the delete guard on
	// ledger-confirmed access requests. Tests rely on this flag instead
	// of sensing the environment.
	Development bool

	// PushEndpoint and PushServerKey configure the FCM-style gateway.
	PushEndpoint  string
	PushServerKey string
}

// Load builds a Config from the environment.
func Load() *Config {
	c := &Config{
		MongoURL:        envOr("ZKPERMIT_MONGO_URL", "mongodb://localhost:27017"),
		DatabaseName:    envOr("ZKPERMIT_DB_NAME", "zkpermit"),
		ListenAddr:      envOr("ZKPERMIT_LISTEN_ADDR", ":8888"),
		LedgerRPC:       os.Getenv("ZKPERMIT_LEDGER_RPC"),
		ContractAddress: os.Getenv("ZKPERMIT_CONTRACT_ADDRESS"),
		PollInterval:    30 * time.Second,
		JWTSecret:       envOr("ZKPERMIT_JWT_SECRET", "development-secret"),
		JWTExpiry:       time.Hour,
		PushEndpoint:    envOr("ZKPERMIT_PUSH_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
		PushServerKey:   os.Getenv("ZKPERMIT_PUSH_SERVER_KEY"),
	}

	if v := os.Getenv("ZKPERMIT_FROM_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.FromBlock = n
		}
	}
	if v := os.Getenv("ZKPERMIT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("ZKPERMIT_JWT_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.JWTExpiry = d
		}
	}
	if v := os.Getenv("ZKPERMIT_DEVELOPMENT"); v != "" {
		c.Development, _ = strconv.ParseBool(v)
	}

	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
