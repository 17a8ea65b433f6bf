// Command policyctl publishes refresh rate policy events to the feed topic
// and smoke-tests the daemon's dependencies.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/adaptive-refresh/internal/persist/redisstore"
	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
	policyfeed "github.com/mohammed-shakir/adaptive-refresh/internal/policyfeed/kafka"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type options struct {
	display string
	op      string
	policy  string
	mode    int
	version uint64
}

func buildEvent(o options, now time.Time) (policyfeed.WireEvent, error) {
	ev := policyfeed.WireEvent{
		Display: o.display,
		Op:      o.op,
		Version: o.version,
		TS:      now.UTC(),
	}
	if o.policy != "" {
		var p policy.Policy
		if err := json.Unmarshal([]byte(o.policy), &p); err != nil {
			return ev, fmt.Errorf("policy: %w", err)
		}
		ev.Policy = &p
	}
	if o.mode >= 0 {
		m := o.mode
		ev.ModeID = &m
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

func publish(brokers []string, topic string, ev policyfeed.WireEvent) error {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.Display),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("published %s for %s (partition %d offset %d)\n", ev.Op, ev.Display, part, off)
	return nil
}

func checkRedis(ctx context.Context, addr, display string) error {
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 2 * time.Second})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	for _, tier := range []redisstore.Tier{redisstore.TierAdministrative, redisstore.TierOverride} {
		val, err := client.Get(ctx, redisstore.Key(display, tier)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			fmt.Printf("redis %s: none\n", tier)
		case err != nil:
			return fmt.Errorf("redis get %s: %w", tier, err)
		default:
			fmt.Printf("redis %s: %s\n", tier, val)
		}
	}
	return nil
}

func checkHTTP(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/readyz", nil)
	if err != nil {
		return fmt.Errorf("bad daemon URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get readyz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	fmt.Printf("readyz %d: %s", resp.StatusCode, body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon not ready (status %d)", resp.StatusCode)
	}
	return nil
}

func main() {
	var o options
	flag.StringVar(&o.display, "display", getenv("DISPLAY_ID", "display-0"), "target display")
	flag.StringVar(&o.op, "op", "", "set_policy | set_override | clear_override | mode_confirmed")
	flag.StringVar(&o.policy, "policy", "", `policy JSON, e.g. {"default_mode":0,"min_fps":60,"max_fps":120}`)
	flag.IntVar(&o.mode, "mode", -1, "mode id for mode_confirmed")
	flag.Uint64Var(&o.version, "version", uint64(time.Now().UnixNano()), "event version")
	check := flag.Bool("check", false, "check redis and daemon readiness instead of publishing")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if *check {
		if err := checkRedis(ctx, getenv("REDIS_ADDR", "localhost:6379"), o.display); err != nil {
			fmt.Println("Redis error:", err)
			os.Exit(1)
		}
		if err := checkHTTP(ctx, getenv("REFRESHD_URL", "http://localhost:8095")); err != nil {
			fmt.Println("Daemon error:", err)
			os.Exit(1)
		}
		return
	}

	ev, err := buildEvent(o, time.Now())
	if err != nil {
		fmt.Println("Event error:", err)
		os.Exit(2)
	}
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	if err := publish(brokers, getenv("KAFKA_TOPIC", "refresh-policy"), ev); err != nil {
		fmt.Println("Kafka error:", err)
		os.Exit(1)
	}
}
