package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rickgao/pointfarm/internal/config"
	"github.com/rickgao/pointfarm/internal/model"
)

func TestNew_NoBrokersIsNop(t *testing.T) {
	p := New(config.EventsConfig{Topic: "t"}, nil)
	if _, ok := p.(Nop); !ok {
		t.Fatalf("New without brokers = %T, want Nop", p)
	}
	if err := p.PublishPoints(context.Background(), model.PointsUpdate{}); err != nil {
		t.Errorf("Nop.PublishPoints error = %v", err)
	}
}

func TestNew_WithBrokersIsKafka(t *testing.T) {
	p := New(config.EventsConfig{Brokers: []string{"localhost:9092"}, Topic: "points"}, nil)
	k, ok := p.(*Kafka)
	if !ok {
		t.Fatalf("New with brokers = %T, want *Kafka", p)
	}
	if k.writer.Topic != "points" || !k.writer.Async {
		t.Errorf("writer topic=%q async=%v", k.writer.Topic, k.writer.Async)
	}
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	upd := model.PointsUpdate{
		WalletAddress: "0xabc",
		DailyPoints:   12.346,
		TotalPoints:   100,
		ReceivedAt:    at,
	}

	msg, err := encode(upd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "0xabc" {
		t.Errorf("Key = %q, want 0xabc", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", msg.Time, at)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got["wallet_address"] != "0xabc" || got["daily_points"] != 12.346 {
		t.Errorf("value = %s", msg.Value)
	}
}
