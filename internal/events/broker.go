// Package events fans out job progress to SSE and websocket subscribers,
// in process or across replicas through Redis.
package events

import (
    "context"
    "sync"
)

// Event is one message on a job's stream.
type Event struct {
    Type string `json:"type"`
    Data any    `json:"data"`
}

// Broker delivers events published for a job to its current subscribers.
// Slow subscribers drop events rather than block publishers.
type Broker interface {
    // Subscribe returns the event channel and a function that ends the
    // subscription and closes the channel. The channel also closes when
    // ctx is done.
    Subscribe(ctx context.Context, jobID string) (<-chan Event, func())
    Publish(ctx context.Context, jobID string, evt Event) error
}

const subBuffer = 16

// Memory is the in-process Broker.
type Memory struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // jobId -> set of channels
}

func NewMemory() *Memory {
    return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(ctx context.Context, jobID string) (<-chan Event, func()) {
    ch := make(chan Event, subBuffer)
    b.mu.Lock()
    if b.subs[jobID] == nil { b.subs[jobID] = map[chan Event]struct{}{} }
    b.subs[jobID][ch] = struct{}{}
    b.mu.Unlock()

    done := make(chan struct{})
    var once sync.Once
    cancel := func() {
        once.Do(func() {
            close(done)
            b.mu.Lock()
            if m := b.subs[jobID]; m != nil {
                delete(m, ch)
                if len(m) == 0 { delete(b.subs, jobID) }
            }
            b.mu.Unlock()
            close(ch)
        })
    }
    go func() {
        select {
        case <-ctx.Done():
            cancel()
        case <-done:
        }
    }()
    return ch, cancel
}

func (b *Memory) Publish(ctx context.Context, jobID string, evt Event) error {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[jobID] {
        select { case ch <- evt: default: }
    }
    return nil
}

// Subscribers is the number of live subscriptions of a job.
func (b *Memory) Subscribers(jobID string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[jobID])
}
