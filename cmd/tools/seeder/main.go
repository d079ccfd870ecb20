package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds a fresh database with a buyer, two products and two on-hold orders
// paid through Chip In so the redirect and webhook flows can be exercised
// locally.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedSubdistricts(db)
	userID := seedUser(db)
	digitalID := seedProduct(db, "E-book Belajar Go", "digital", "100.00")
	physicalID := seedProduct(db, "Kaos Gopher", "physical", "150.00")

	seedOrder(db, digitalID, userID, 1, "100.00", map[string]any{})
	seedOrder(db, physicalID, userID, 2, "318.00", map[string]any{
		"shipping_data": map[string]any{
			"receiver":    "Budi Santoso",
			"phone":       "08123456789",
			"district_id": 2101,
			"courier":     "jne",
			"service":     "REG",
			"cost":        "18.00",
		},
	})

	log.Println("Seeding completed successfully!")
}

func seedSubdistricts(db *sql.DB) {
	rows := []struct {
		ID          int64
		Province    string
		Type        string
		City        string
		Subdistrict string
	}{
		{2101, "DKI Jakarta", "Kota", "Jakarta Selatan", "Kebayoran Baru"},
		{2102, "Jawa Barat", "Kabupaten", "Bandung", "Cileunyi"},
	}

	fmt.Println("Seeding Subdistricts...")
	for _, r := range rows {
		_, err := db.Exec(`
			INSERT INTO sejolisa_subdistricts (id, province, type, city, subdistrict)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`, r.ID, r.Province, r.Type, r.City, r.Subdistrict)
		if err != nil {
			log.Printf("Failed to insert subdistrict %d: %v", r.ID, err)
		}
	}
}

func seedUser(db *sql.DB) int64 {
	fmt.Println("Seeding Users...")
	var id int64
	err := db.QueryRow(`SELECT id FROM sejolisa_users WHERE email = $1`, "budi@example.com").Scan(&id)
	if err == nil {
		return id
	}
	err = db.QueryRow(`
		INSERT INTO sejolisa_users (display_name, email, phone, address, destination)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, "Budi Santoso", "budi@example.com", "08123456789", "Jl. Senopati 10", 2101).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to insert user: %v", err)
	}
	return id
}

func seedProduct(db *sql.DB, name, kind, price string) int64 {
	var id int64
	err := db.QueryRow(`SELECT id FROM sejolisa_products WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id
	}
	err = db.QueryRow(`
		INSERT INTO sejolisa_products (name, type, price)
		VALUES ($1, $2, $3)
		RETURNING id`, name, kind, price).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to insert product %s: %v", name, err)
	}
	return id
}

func seedOrder(db *sql.DB, productID, userID int64, qty int, total string, meta map[string]any) {
	raw, err := json.Marshal(meta)
	if err != nil {
		log.Fatalf("Failed to encode order meta: %v", err)
	}
	var id int64
	err = db.QueryRow(`
		INSERT INTO sejolisa_orders (product_id, user_id, quantity, grand_total, status, payment_gateway, meta_data)
		VALUES ($1, $2, $3, $4, 'on-hold', 'chip-in', $5)
		RETURNING id`, productID, userID, qty, total, string(raw)).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to insert order: %v", err)
	}
	log.Printf("Order %d ready: /checkout/thank-you?order_id=%d", id, id)
}
