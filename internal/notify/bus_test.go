package notify

import (
	"testing"
	"time"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	stream, unsub := b.Subscribe(4)
	defer unsub()

	want := Notification{ChallengeID: "c1", Kind: KindViolation, Message: "daily loss breached"}
	b.Publish(want)

	select {
	case got := <-stream:
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	s1, unsub1 := b.Subscribe(1)
	defer unsub1()
	s2, unsub2 := b.Subscribe(1)
	defer unsub2()

	b.Publish(Notification{ChallengeID: "c1", Kind: KindPromotion})

	for i, s := range []<-chan Notification{s1, s2} {
		select {
		case <-s:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the notification", i)
		}
	}
}

func TestBus_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Fill the buffered channel, then publish once more: a slow
		// subscriber must never stall the publisher.
		for i := 0; i < 5; i++ {
			b.Publish(Notification{ChallengeID: "c1", Kind: KindWarning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	stream, unsub := b.Subscribe(1)
	unsub()

	b.Publish(Notification{ChallengeID: "c1", Kind: KindScaling})

	if _, ok := <-stream; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}
