// Package main issues bearer tokens for the scheduler API.
//
// The token is signed with the key the server uses, so both must point at
// the same key file.
//
// Usage:
//
//	go run ./cmd/token --client phone
//	go run ./cmd/token --client ci --scopes read,commands --ttl 24h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/auth"
)

var (
	keyPath = flag.String("key", "", "Token key file (default: $HOME/NeoBackup/data/auth.key)")
	client  = flag.String("client", "", "Client name recorded in the token")
	scopes  = flag.String("scopes", "", "Comma separated scopes (default: read,write,commands)")
	ttl     = flag.Duration("ttl", 30*24*time.Hour, "Token lifetime")
)

func main() {
	flag.Parse()

	if *client == "" {
		log.Fatal("--client is required")
	}

	path := *keyPath
	if path == "" {
		path = os.Getenv("AUTH_KEY_PATH")
	}
	if path == "" {
		path = os.ExpandEnv("$HOME/NeoBackup/data/auth.key")
	}

	key, err := auth.LoadOrGenerateKey(path)
	if err != nil {
		log.Fatalf("Failed to load key: %v", err)
	}

	var granted []auth.Scope
	if *scopes != "" {
		for _, name := range strings.Split(*scopes, ",") {
			scope, ok := auth.ParseScope(strings.TrimSpace(name))
			if !ok {
				log.Fatalf("Unknown scope %q", name)
			}
			granted = append(granted, scope)
		}
	}

	tokens, err := auth.NewTokenService(key, *ttl)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	token, claims, err := tokens.Issue(*client, granted)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Client: %s\nScopes: %v\nExpires: %s\n\n",
		claims.Client, claims.Scopes, claims.Expiration.Format(time.RFC3339))
	fmt.Println(token)
}
