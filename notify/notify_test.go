package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/rules"
)

func sampleEvent() *history.ActionEvent {
	return &history.ActionEvent{
		AccountID:   "act_1",
		RuleID:      "r1",
		CampaignID:  "120210",
		Action:      rules.ActionPauseCampaigns,
		Expression:  "Spend > $500",
		Message:     rules.Notification(rules.ActionPauseCampaigns, "Spend > $500"),
		TriggeredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, *history.ActionEvent) error {
	s.calls++
	return s.err
}

func TestMultiDeliversToAll(t *testing.T) {
	failing := &stubNotifier{name: "failing", err: errors.New("unreachable")}
	ok := &stubNotifier{name: "ok"}

	err := Multi{failing, ok, LogNotifier{}}.Notify(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "failing: unreachable") {
		t.Errorf("Notify error = %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("calls = %d, %d; every notifier should run once", failing.calls, ok.calls)
	}

	if err := (Multi{ok}).Notify(context.Background(), sampleEvent()); err != nil {
		t.Errorf("Notify with healthy notifiers = %v", err)
	}
}

func TestRecorderNotifier(t *testing.T) {
	rec := history.NewMemoryRecorder(0, 0)
	n := RecorderNotifier{Recorder: rec}

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	actions, _ := rec.Actions(context.Background(), "act_1", 0)
	if len(actions) != 1 || actions[0].Message != sampleEvent().Message {
		t.Errorf("recorded actions = %+v", actions)
	}
}

type stubBroadcaster struct {
	msgType string
	data    any
}

func (s *stubBroadcaster) Broadcast(msgType string, data any) error {
	s.msgType, s.data = msgType, data
	return nil
}

func TestHubNotifier(t *testing.T) {
	b := &stubBroadcaster{}
	evt := sampleEvent()

	if err := (HubNotifier{Hub: b}).Notify(context.Background(), evt); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if b.msgType != feed.MessageActionTaken || b.data != evt {
		t.Errorf("broadcast = %q %v", b.msgType, b.data)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifier(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "act_1" {
		t.Errorf("Key = %q, want act_1", msg.Key)
	}

	var decoded history.ActionEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if decoded.Message != sampleEvent().Message || decoded.Action != rules.ActionPauseCampaigns {
		t.Errorf("payload = %+v", decoded)
	}

	w.err = errors.New("broker down")
	if err := n.Notify(context.Background(), sampleEvent()); err == nil {
		t.Error("write failure should be returned")
	}
}

func TestNewKafkaNotifierValidatesConfig(t *testing.T) {
	if _, err := NewKafkaNotifier(nil, "actions"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaNotifier([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error without topic")
	}
	n, err := NewKafkaNotifier([]string{"localhost:9092"}, "actions")
	if err != nil {
		t.Fatalf("NewKafkaNotifier failed: %v", err)
	}
	_ = n.Close()
}
