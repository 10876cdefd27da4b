package pubsub

import "testing"

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(ConfigChannel)
	b := hub.Subscribe(ConfigChannel)
	defer a.Close()
	defer b.Close()

	hub.Publish(ConfigChannel, "hello")

	if got := <-a.C; got != "hello" {
		t.Errorf("subscriber a got %v", got)
	}
	if got := <-b.C; got != "hello" {
		t.Errorf("subscriber b got %v", got)
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	hub := NewHub()
	cfg := hub.Subscribe(ConfigChannel)
	stats := hub.Subscribe(StatsChannel)
	defer cfg.Close()
	defer stats.Close()

	hub.Publish(StatsChannel, 42)

	if got := <-stats.C; got != 42 {
		t.Errorf("stats subscriber got %v", got)
	}
	select {
	case msg := <-cfg.C:
		t.Errorf("config subscriber received foreign message %v", msg)
	default:
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(ConfigChannel)
	sub.Close()
	sub.Close() // idempotent

	if _, ok := <-sub.C; ok {
		t.Errorf("closed subscription still delivers")
	}

	// Publishing to a channel with no subscribers must not panic.
	hub.Publish(ConfigChannel, "into the void")
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(ConfigChannel)
	defer sub.Close()

	for i := 0; i < subscriptionBuffer*3; i++ {
		hub.Publish(ConfigChannel, i)
	}

	// The buffer holds the oldest messages; the rest were dropped.
	received := 0
	for {
		select {
		case <-sub.C:
			received++
		default:
			if received != subscriptionBuffer {
				t.Errorf("received %d messages, want %d", received, subscriptionBuffer)
			}
			return
		}
	}
}
