// Package main runs a demo WebSocket client for plan events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Choose the plan id up front so we can subscribe before solving.
	planID := uuid.New().String()

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws/plans"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"planId": planID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Kick off a small solve that streams progress to our subscription.
	body := []byte(fmt.Sprintf(`{
		"tenantId": "t_demo",
		"planId": %q,
		"hub": {"id": "hub", "lat": 40.0, "lon": -75.0},
		"nodes": [
			{"id": "n1", "lat": 40.1, "lon": -75.1, "demand": 2},
			{"id": "n2", "lat": 40.2, "lon": -74.9, "demand": -1},
			{"id": "n3", "lat": 39.9, "lon": -75.2, "demand": 3}
		],
		"vehicles": [{"id": "v1", "capacity": 5, "rate": 1.0}],
		"config": {"metaheuristic": "simulated-annealing", "maxIterations": 2000}
	}`, planID))
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		problem, _ := io.ReadAll(resp.Body)
		log.Fatalf("solve returned %d: %s", resp.StatusCode, problem)
	}
	var solve struct {
		Plan struct {
			ID      string `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"plan"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solve); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan %s: %s", solve.Plan.ID, solve.Plan.Outcome)

	// Wait briefly to receive the trailing events
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
