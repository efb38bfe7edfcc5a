// Command notify publishes observation update notices so running map
// services drop cached data for the named types.
//
// Usage:
//
//	go run ./cmd/notify -brokers localhost:9092 -type e -site HOLD -network CG
//	go run ./cmd/notify -type e,n,u
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	kafkaadapter "github.com/couchcryptid/fits-map-service/internal/adapter/kafka"
	"github.com/couchcryptid/fits-map-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	brokers := flag.String("brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "comma separated Kafka brokers")
	topic := flag.String("topic", envOr("KAFKA_TOPIC", "fits-observation-updates"), "update notice topic")
	types := flag.String("type", "", "comma separated observation type IDs")
	site := flag.String("site", "", "site ID (informational)")
	network := flag.String("network", "", "network ID (informational)")
	timeout := flag.Duration("timeout", 10*time.Second, "publish timeout")
	flag.Parse()

	notices := buildNotices(*types, *site, *network)
	if len(notices) == 0 {
		flag.Usage()
		return errors.New("missing required flag: -type")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	pub := kafkaadapter.NewPublisher(splitList(*brokers), *topic, logger)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := pub.Publish(ctx, notices...); err != nil {
		return err
	}

	fmt.Printf("published %d notice(s) to %s\n", len(notices), *topic)
	return nil
}

func buildNotices(types, site, network string) []domain.UpdateNotice {
	var out []domain.UpdateNotice
	for _, t := range splitList(types) {
		out = append(out, domain.UpdateNotice{TypeID: t, SiteID: site, NetworkID: network})
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
