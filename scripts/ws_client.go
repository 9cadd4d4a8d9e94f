// Package main runs a demo WebSocket client that scores an IGC file and
// prints its progress.
//
//	go run scripts/ws_client.go flight.igc [scoring]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: ws_client <flight.igc> [scoring]")
	}
	track, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	scoring := "FFVL"
	if len(os.Args) > 2 {
		scoring = os.Args[2]
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Submit the track
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/scores?scoring="+url.QueryEscape(scoring), bytes.NewReader(track))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: %s", resp.Status)
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatal(err)
	}
	log.Printf("Job ID: %s", job.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"jobId": job.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(10 * time.Minute))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		if m.Type == "complete" || m.Type == "error" {
			return
		}
	}
}
