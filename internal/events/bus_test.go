package events

import "testing"

func TestBus_PublishDeliversToMatchingTopic(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4, "camera.status")
	defer sub.Close()

	b.Publish(Event{Topic: "camera.status", Payload: []byte(`{"id":"cam-1"}`)})
	b.Publish(Event{Topic: "mixer.scene", Payload: []byte(`{}`)})

	select {
	case ev := <-sub.C:
		if ev.Topic != "camera.status" {
			t.Fatalf("expected camera.status, got %s", ev.Topic)
		}
	default:
		t.Fatal("expected a buffered event")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("did not expect a second event, got %v", ev)
	default:
	}
}

func TestBus_SubscribeAllTopics(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)
	defer sub.Close()

	b.Publish(Event{Topic: "anything"})
	select {
	case <-sub.C:
	default:
		t.Fatal("expected delivery to wildcard subscriber")
	}
}

func TestBus_FullBufferDropsWithoutBlocking(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1, "x")
	defer sub.Close()

	b.Publish(Event{Topic: "x"})
	b.Publish(Event{Topic: "x"}) // must not block even though buffer is full

	count := 0
	for {
		select {
		case <-sub.C:
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 buffered event, got %d", count)
	}
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1, "x")
	sub.Close()
	sub.Close() // idempotent

	b.Publish(Event{Topic: "x"})
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed after Close")
	}
}
