package main

import (
	"fmt"
	"log"

	"github.com/consultdesk/booking-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for ConsultDesk Booking")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTAccess)
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", secrets.JWTRefresh)
	fmt.Printf("PAYMENT_WEBHOOK_SECRET=%s\n", secrets.WebhookSecret)
	fmt.Printf("MEETING_TOKEN_KEY=%s\n", secrets.TokenKey)
	fmt.Println()
	fmt.Println("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET come from the gateway dashboard.")
	fmt.Println("The webhook secret must also be entered in the gateway's webhook settings.")
	fmt.Println("Rotating MEETING_TOKEN_KEY makes stored meeting credentials unreadable;")
	fmt.Println("consultants must reconnect their platforms afterwards.")
	fmt.Println("===========================================")
}
