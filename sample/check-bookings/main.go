package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/infra/integration/calcom"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env not found, using process environment")
	}

	if os.Getenv("CALCOM_API_KEY") == "" {
		log.Fatal("❌ CALCOM_API_KEY must be set")
	}

	client := calcom.NewClient(os.Getenv("CALCOM_API_KEY"), os.Getenv("CALCOM_BASE_URL"), logrus.StandardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("🔄 Fetching upcoming bookings...")
	bookings, err := client.FetchUpcoming(ctx, os.Getenv("CALCOM_EVENT_TYPE_ID"))
	if err != nil {
		log.Fatalf("❌ fetch failed: %v", err)
	}

	fmt.Printf("📋 %d bookings\n", len(bookings))
	for _, b := range bookings {
		id := b.Identity()
		fmt.Printf("   %s  %-20s phone=%s email=%s ref=%s\n",
			b.StartTime.Format(time.RFC3339), b.AttendeeName, id.Phone, id.Email, b.ExternalRef)
	}
}
