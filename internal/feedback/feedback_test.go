package feedback

import (
	"testing"
	"time"

	"labattend/internal/clock"
)

func TestBoardClearsAfterDuration(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	b := NewBoard(c, 10)

	b.Notify(Error("Scanner disconnected", DeviceBannerDuration))
	if s, ok := b.Current(); !ok || s.Message != "Scanner disconnected" {
		t.Fatalf("current = %+v, %v", s, ok)
	}

	c.Advance(DeviceBannerDuration - time.Millisecond)
	if _, ok := b.Current(); !ok {
		t.Fatal("banner cleared too early")
	}
	c.Advance(time.Millisecond)
	if _, ok := b.Current(); ok {
		t.Fatal("banner should have cleared")
	}
}

func TestBoardNewerBannerKeepsItsOwnDeadline(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	b := NewBoard(c, 10)

	b.Notify(Success("first", 3*time.Second))
	c.Advance(2 * time.Second)
	b.Notify(Success("second", 3*time.Second))
	c.Advance(2 * time.Second)

	s, ok := b.Current()
	if !ok || s.Message != "second" {
		t.Fatalf("current = %+v, %v; want second still visible", s, ok)
	}
	if got := len(b.History()); got != 2 {
		t.Fatalf("history len = %d", got)
	}
}

func TestToneMapping(t *testing.T) {
	if s := Success("ok", 0); s.Tone.FrequencyHz != 1000 || s.Tone.Duration != 150*time.Millisecond {
		t.Fatalf("success tone = %+v", s.Tone)
	}
	if s := Error("bad", 0); s.Tone.FrequencyHz != 400 || s.Tone.Duration != 300*time.Millisecond {
		t.Fatalf("error tone = %+v", s.Tone)
	}
}

func TestBoardDefaultsDuration(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	b := NewBoard(c, 1)
	b.Notify(Signal{Kind: KindSuccess, Message: "x"})
	b.Notify(Signal{Kind: KindSuccess, Message: "y"})
	if h := b.History(); len(h) != 1 || h[0].Message != "y" {
		t.Fatalf("history = %+v", h)
	}
	c.Advance(DefaultBannerDuration)
	if _, ok := b.Current(); ok {
		t.Fatal("default duration not applied")
	}
}
