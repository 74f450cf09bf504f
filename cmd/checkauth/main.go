package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CheckAuthConfig liest nur die Parameter, die für die Auth-Probe nötig sind.
type CheckAuthConfig struct {
	BackendBaseURL string `envconfig:"BACKEND_BASE_URL" default:"http://localhost:3036"`
	TimeoutSeconds int    `envconfig:"BACKEND_TIMEOUT_SECONDS" default:"30"`
}

func main() {
	var cfg CheckAuthConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	log.Printf("Prüfe Backend-Session gegen %s ...", cfg.BackendBaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BackendBaseURL+"/notebooks", nil)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Requests: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Backend nicht erreichbar: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Notebooks []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"notebooks"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			log.Fatalf("Antwort nicht lesbar: %v", err)
		}
		log.Printf("Session gültig, %d Notebooks gefunden.", len(body.Notebooks))
		for _, nb := range body.Notebooks {
			fmt.Printf("  %s  %s\n", nb.ID, nb.Title)
		}
	case http.StatusUnauthorized:
		log.Println("Session abgelaufen - Backend neu anmelden.")
		os.Exit(1)
	default:
		log.Printf("Unerwarteter Status: %d", resp.StatusCode)
		os.Exit(1)
	}
}
