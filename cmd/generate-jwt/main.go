// Command generate-jwt mints a relay session token for manual API testing,
// bypassing the wallet-signature exchange.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"payables-relay/internal/config"
	"payables-relay/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml)")
	wallet := flag.String("wallet", "", "wallet address to embed in the token")
	chain := flag.String("chain", "ethsepolia", "chain name to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *wallet == "" {
		log.Fatal("-wallet is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := middleware.GenerateSessionToken(cfg.Auth.JWTSecret, *wallet, *chain, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Println("Session token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' ...\n", token)
}
