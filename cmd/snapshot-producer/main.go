// snapshot-producer publishes synthetic order book snapshots to Kafka so the
// engine can be exercised locally without a live market data adapter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/segmentio/kafka-go"
)

// generateSnapshot builds a book around basePrice with the given number of
// levels per side. Sizes and level gaps are randomized so consecutive
// snapshots move like a real feed.
func generateSnapshot(market string, basePrice, spread float64, depth int) snapshotv1.Payload {
	payload := snapshotv1.Payload{
		Market: market,
		Asks:   make([]snapshotv1.BookLevel, 0, depth),
		Bids:   make([]snapshotv1.BookLevel, 0, depth),
	}

	mid := basePrice + (rand.Float64()-0.5)*spread
	tick := spread / float64(depth) / 2

	for i := 0; i < depth; i++ {
		size := 0.01 + rand.Float64()*9.99
		size = float64(int(size*1000)) / 1000

		askPrice := mid + tick*float64(i+1)
		payload.Asks = append(payload.Asks, snapshotv1.BookLevel{
			Price: float64(int(askPrice*10)) / 10,
			Size:  size,
		})

		size = 0.01 + rand.Float64()*9.99
		size = float64(int(size*1000)) / 1000

		bidPrice := mid - tick*float64(i+1)
		if bidPrice <= 0 {
			bidPrice = tick
		}
		payload.Bids = append(payload.Bids, snapshotv1.BookLevel{
			Price: float64(int(bidPrice*10)) / 10,
			Size:  size,
		})
	}

	return payload
}

func main() {
	var (
		brokers   = flag.String("brokers", "localhost:9092", "Kafka broker addresses (comma-separated)")
		topic     = flag.String("topic", "orderbook-snapshots", "Kafka topic name")
		market    = flag.String("market", "KRW-BTC", "Market to publish snapshots for")
		interval  = flag.Duration("interval", 500*time.Millisecond, "Delay between snapshots")
		count     = flag.Int("count", 0, "Number of snapshots to send (0 = until interrupted)")
		basePrice = flag.Float64("base-price", 3945.5, "Mid price to build the book around")
		spread    = flag.Float64("spread", 200.0, "Price range covered by the book")
		depth     = flag.Int("depth", 10, "Levels per side")
	)
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	writer := &kafka.Writer{
		Addr:         kafka.TCP(*brokers),
		Topic:        *topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	log.Printf("Publishing snapshots for %s to broker %s, topic %s", *market, *brokers, *topic)

	sent := 0
	for {
		if *count > 0 && sent >= *count {
			break
		}
		if ctx.Err() != nil {
			break
		}

		payload := generateSnapshot(*market, *basePrice, *spread, *depth)
		value, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("Failed to marshal snapshot: %v", err)
		}

		msg := kafka.Message{
			Key:   []byte(*market),
			Value: value,
			Time:  time.Now(),
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("Failed to send snapshot %d: %v", sent+1, err)
			continue
		}

		sent++
		if sent%100 == 0 {
			log.Printf("Sent %d snapshots, best ask %.1f, best bid %.1f",
				sent, payload.Asks[0].Price, payload.Bids[0].Price)
		}

		select {
		case <-ctx.Done():
		case <-time.After(*interval):
		}
	}

	log.Printf("Done, sent %d snapshots", sent)
}
