package main

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/inbound"
)

// Signs a fake Chip In event with a local RSA key and posts it to the
// webhook endpoint. Pair with CHIPIN_WEBHOOK_PUBLIC_KEY set to the public
// half printed by -genkey.
func main() {
	_ = godotenv.Load()

	var (
		target    = flag.String("url", "http://localhost:8080/chip-in/webhook", "webhook endpoint")
		keyPath   = flag.String("key", "chipin-dev.pem", "PEM encoded RSA private key")
		genKey    = flag.Bool("genkey", false, "generate a key pair at -key and print the public key")
		orderID   = flag.String("order", "", "order id used as the purchase reference")
		eventType = flag.String("event", inbound.EventPurchasePaid, "event type")
		dryRun    = flag.Bool("dry-run", false, "print the signed request instead of sending it")
	)
	flag.Parse()

	if *genKey {
		if err := generateKey(*keyPath); err != nil {
			log.Fatalf("generate key: %v", err)
		}
		return
	}
	if strings.TrimSpace(*orderID) == "" {
		log.Fatal("-order is required")
	}

	key, err := loadKey(*keyPath)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	body, err := json.Marshal(map[string]any{
		"id":         uuid.NewString(),
		"event_type": *eventType,
		"reference":  *orderID,
		"status":     statusFor(*eventType),
		"created_on": time.Now().Unix(),
	})
	if err != nil {
		log.Fatalf("encode event: %v", err)
	}
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	signature := base64.StdEncoding.EncodeToString(sig)

	if *dryRun {
		fmt.Printf("%s: %s\n%s\n", chipin.SignatureHeader, signature, body)
		return
	}

	req, err := http.NewRequest(http.MethodPost, *target, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(chipin.SignatureHeader, signature)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	log.Printf("%s %s", resp.Status, strings.TrimSpace(string(out)))
}

func statusFor(event string) string {
	switch event {
	case inbound.EventPurchasePaid:
		return "paid"
	case inbound.EventPurchaseCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

func generateKey(path string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return err
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	fmt.Print(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})))
	return nil
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}
	return key, nil
}
