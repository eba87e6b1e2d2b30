// Command seeder applies the claimengine_documents schema to a PostgreSQL
// database and inserts a handful of sample channel records for local
// development, grounded on the teacher's own migration-then-seed seeder.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/store/postgres"
)

func main() {
	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		// Fallback to reading .env manually since godotenv isn't here
		data, _ := os.ReadFile(".env")
		lines := strings.Split(string(data), "\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "POSTGRES_URL=") {
				postgresURL = strings.TrimPrefix(line, "POSTGRES_URL=")
				break
			}
		}
	}

	if postgresURL == "" {
		log.Fatal("POSTGRES_URL not found")
	}

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Ping failed:", err)
	}

	fmt.Println("Connected to DB")

	// 1. Apply schema
	fmt.Println("Applying schema...")
	if _, err := db.Exec(postgres.Schema); err != nil {
		log.Fatal("Schema apply failed:", err)
	}
	fmt.Println("Schema applied successfully")

	// 2. Seed a handful of sample channels
	fmt.Println("Seeding sample channels...")
	samples := []struct {
		cid  string
		priv record.PrivateChannelRecord
		pub  record.PublicChannelRecord
	}{
		{
			cid: "00000000-0000-0000-0000-000000000001",
			priv: record.PrivateChannelRecord{
				AuthorizedToClaim: "1000000",
				ToClaim:           0,
				Currency:          record.XRP,
				Timestamp:         time.Now().UTC(),
			},
			pub: record.PublicChannelRecord{ToClaim: 0, Currency: record.XRP},
		},
		{
			cid: "00000000-0000-0000-0000-000000000002",
			priv: record.PrivateChannelRecord{
				AuthorizedToClaim: "5000000",
				ToClaim:           120000,
				Currency:          record.XRP,
				Timestamp:         time.Now().UTC(),
			},
			pub: record.PublicChannelRecord{ToClaim: 120000, Currency: record.XRP},
		},
	}

	for _, s := range samples {
		privJSON, err := json.Marshal(s.priv)
		if err != nil {
			log.Printf("Error marshaling private record for %s: %v\n", s.cid, err)
			continue
		}
		pubJSON, err := json.Marshal(s.pub)
		if err != nil {
			log.Printf("Error marshaling public record for %s: %v\n", s.cid, err)
			continue
		}

		if _, err := db.Exec(
			`INSERT INTO claimengine_documents (path, data) VALUES ($1, $2)
			 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data`,
			"payment_channels/"+s.cid, privJSON,
		); err != nil {
			fmt.Printf("Error seeding private record for %s: %v\n", s.cid, err)
			continue
		}
		if _, err := db.Exec(
			`INSERT INTO claimengine_documents (path, data) VALUES ($1, $2)
			 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data`,
			"public_claim_info/"+s.cid, pubJSON,
		); err != nil {
			fmt.Printf("Error seeding public record for %s: %v\n", s.cid, err)
			continue
		}
	}

	fmt.Println("Seeding complete")
}
