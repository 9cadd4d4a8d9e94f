package events

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub, one channel per job.
type Redis struct {
    rdb *redis.Client
}

// NewRedis connects to url (redis://...) and checks the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, err
    }
    return &Redis{rdb: rdb}, nil
}

func (b *Redis) Close() error { return b.rdb.Close() }

func (b *Redis) Subscribe(ctx context.Context, jobID string) (<-chan Event, func()) {
    ch := make(chan Event, subBuffer)
    ps := b.rdb.Subscribe(ctx, chanName(jobID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    var once sync.Once
    cancel := func() { once.Do(func() { _ = ps.Close() }) }
    go func() {
        defer close(ch)
        msgs := ps.Channel()
        for {
            select {
            case <-ctx.Done():
                cancel()
                return
            case msg, ok := <-msgs:
                if !ok { return }
                evt, err := decode(msg.Payload)
                if err != nil { continue }
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch, cancel
}

func (b *Redis) Publish(ctx context.Context, jobID string, evt Event) error {
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil { return err }
    return b.rdb.Publish(ctx, chanName(jobID), data).Err()
}

func decode(payload string) (Event, error) {
    var evt Event
    err := json.Unmarshal([]byte(payload), &evt)
    return evt, err
}

func chanName(jobID string) string { return "score:" + jobID }
