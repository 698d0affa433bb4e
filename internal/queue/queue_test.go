package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, Message{Type: "session.completed", Body: []byte(`{"a":1}`)}); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-msgs:
		if m.Type != "session.completed" || string(m.Body) != `{"a":1}` {
			t.Fatalf("got %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("channel should close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: "x"}); err == nil {
		t.Fatal("publish on full queue should fail once ctx expires")
	}
}

func TestEncodeDecode(t *testing.T) {
	m := decode(encode(Message{Type: "session.completed", Body: []byte("a|b")}))
	if m.Type != "session.completed" || string(m.Body) != "a|b" {
		t.Fatalf("got %+v", m)
	}
	if m := decode("no-separator"); m.Type != "" || string(m.Body) != "no-separator" {
		t.Fatalf("got %+v", m)
	}
}
