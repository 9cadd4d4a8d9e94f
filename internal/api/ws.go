package api

import (
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "xcscore/internal/logging"
)

// Job progress over WebSocket, using the graphql-transport-ws message
// framing (connection_init, subscribe, next, complete).

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
    JobID string `json:"jobId"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.authorize(w, r)
    if !ok { return }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()
    ctx := r.Context()

    // gorilla connections allow one concurrent writer
    var wmu sync.Mutex
    write := func(v any) error {
        wmu.Lock()
        defer wmu.Unlock()
        _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
        return conn.WriteJSON(v)
    }
    fail := func(id, msg string) {
        b, _ := json.Marshal(map[string]string{"message": msg})
        _ = write(wsMessage{Type: "error", ID: id, Payload: b})
        _ = write(wsMessage{Type: "complete", ID: id})
    }

    done := make(chan struct{})
    defer close(done)
    subs := map[string]func(){}
    defer func() {
        for _, cancel := range subs { cancel() }
    }()

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    acked := false
    for {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            break
        }
        _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
        switch msg.Type {
        case "connection_init":
            if acked { continue }
            acked = true
            _ = write(wsMessage{Type: "connection_ack"})
            go func() {
                ticker := time.NewTicker(20 * time.Second)
                defer ticker.Stop()
                for {
                    select {
                    case <-done:
                        return
                    case <-ticker.C:
                        if err := write(wsMessage{Type: "ping"}); err != nil { return }
                    }
                }
            }()
        case "ping":
            _ = write(wsMessage{Type: "pong"})
        case "pong":
        case "subscribe":
            if !acked { fail(msg.ID, "connection_init required"); continue }
            if msg.ID == "" { fail(msg.ID, "id required"); continue }
            if _, dup := subs[msg.ID]; dup { fail(msg.ID, "subscription id in use"); continue }
            var pl subscribePayload
            if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.JobID == "" {
                fail(msg.ID, "jobId required")
                continue
            }
            ch, cancel := s.Broker.Subscribe(ctx, pl.JobID)
            job, err := s.Store.GetJob(ctx, p.Tenant, pl.JobID)
            if err != nil {
                cancel()
                fail(msg.ID, "job not found")
                continue
            }
            subs[msg.ID] = cancel
            snap, _ := json.Marshal(map[string]any{"type": "snapshot", "data": job})
            _ = write(wsMessage{Type: "next", ID: msg.ID, Payload: snap})
            if job.Status.Terminal() {
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                cancel()
                delete(subs, msg.ID)
                continue
            }
            go func(id string) {
                for evt := range ch {
                    payload, err := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
                    if err != nil {
                        s.Log.Warn(ctx, "ws event encode failed", logging.String("job", pl.JobID), logging.Err(err))
                        continue
                    }
                    if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil { return }
                    if terminalEvent(evt.Type) { break }
                }
                _ = write(wsMessage{Type: "complete", ID: id})
            }(msg.ID)
        case "complete", "unsubscribe":
            if cancel, ok := subs[msg.ID]; ok {
                cancel()
                delete(subs, msg.ID)
            }
        default:
            // ignore
        }
    }
}
