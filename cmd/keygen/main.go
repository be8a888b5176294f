// Package main provides the API key management tool for eventcanon.
//
// keygen issues producer API keys and verifies bcrypt key hashes. The
// plaintext key is printed exactly once at issue time; operators store the
// hash and hand the plaintext to the producer.
//
// Usage:
//
//	keygen -producer client_A -name "client A ingest key"
//	keygen -verify -hash '$2a$10$...' -key eventcanon_ak_...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/eventcanon-io/eventcanon/internal/config"
	"github.com/eventcanon-io/eventcanon/internal/storage"
)

const (
	version = "1.0.0-dev"
	name    = "keygen"
)

type issuedKey struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	KeyHash     string   `json:"keyHash"`
	ProducerID  string   `json:"producerId"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"createdAt"`
}

func main() {
	var (
		versionFlag = flag.Bool("version", false, "show version information")
		producerID  = flag.String("producer", "", "producer identifier to issue a key for")
		keyName     = flag.String("name", "", "human-readable key name (defaults to '<producer> ingest key')")
		permissions = flag.String("permissions", "events:write", "comma-separated permission scopes")
		verify      = flag.Bool("verify", false, "verify a key against a stored hash instead of issuing")
		hash        = flag.String("hash", "", "stored bcrypt hash (verify mode)")
		key         = flag.String("key", "", "plaintext API key (verify mode)")
	)

	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *verify {
		runVerify(*hash, *key)

		return
	}

	runIssue(*producerID, *keyName, *permissions)
}

// runIssue generates a fresh API key for the producer and prints the key
// record, including the bcrypt hash, as JSON on stdout.
func runIssue(producerID, keyName, permissions string) {
	if producerID == "" {
		log.Fatal("missing required flag: -producer")
	}

	if keyName == "" {
		keyName = producerID + " ingest key"
	}

	apiKey, err := storage.NewKey(producerID, keyName, config.ParseCommaSeparatedList(permissions))
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash, err := storage.HashAPIKey(apiKey.Key)
	if err != nil {
		log.Fatalf("failed to hash key: %v", err)
	}

	record := issuedKey{
		ID:          apiKey.ID,
		Key:         apiKey.Key,
		KeyHash:     keyHash,
		ProducerID:  apiKey.ProducerID,
		Name:        apiKey.Name,
		Permissions: apiKey.Permissions,
		CreatedAt:   apiKey.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(record); err != nil {
		log.Fatalf("failed to encode key record: %v", err)
	}

	fmt.Fprintln(os.Stderr, "The plaintext key is shown once; store only the hash.")
}

// runVerify checks a plaintext key against a stored bcrypt hash and exits
// non-zero on mismatch, so it can gate scripts.
func runVerify(hash, key string) {
	if strings.TrimSpace(hash) == "" || strings.TrimSpace(key) == "" {
		log.Fatal("verify mode requires both -hash and -key")
	}

	if !storage.CompareAPIKeyHash(hash, key) {
		fmt.Fprintln(os.Stderr, "MISMATCH")
		os.Exit(1)
	}

	fmt.Println("OK")
}
