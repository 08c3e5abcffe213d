package bus

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()

	var first, second []any
	b.Subscribe("topic", func(p any) { first = append(first, p) })
	b.Subscribe("topic", func(p any) { second = append(second, p) })

	b.Publish("topic", "hello")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to receive, got %d and %d", len(first), len(second))
	}
	if first[0] != "hello" {
		t.Fatalf("unexpected payload: %v", first[0])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	unsub := b.Subscribe("topic", func(any) { count++ })

	b.Publish("topic", 1)
	unsub()
	b.Publish("topic", 2)
	unsub() // double unsubscribe is harmless

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := New()

	b.Publish("topic", "early")

	delivered := false
	b.Subscribe("topic", func(any) { delivered = true })

	if delivered {
		t.Fatal("late subscriber must not receive earlier publishes")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()

	var got []string
	b.Subscribe("a", func(p any) { got = append(got, "a:"+p.(string)) })
	b.Subscribe("b", func(p any) { got = append(got, "b:"+p.(string)) })

	b.Publish("a", "x")

	if len(got) != 1 || got[0] != "a:x" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}
