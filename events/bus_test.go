package events

import (
	"testing"

	"github.com/gwww/upb-lib/registry"
)

func TestSubscribePublish(t *testing.T) {
	b := New()

	var got []Event
	b.Subscribe(DeviceUpdated, func(e Event) { got = append(got, e) })

	dev := registry.Device{Addr: registry.DeviceAddr{Network: 1, Device: 2}}
	b.Publish(Event{Topic: DeviceUpdated, Device: &dev})
	b.Publish(Event{Topic: Connected})

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Device == nil || got[0].Device.Key() != "1_2_0" {
		t.Errorf("event device = %v", got[0].Device)
	}
	if got[0].At.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	var count int
	cancel := b.Subscribe(Connected, func(Event) { count++ })

	b.Publish(Event{Topic: Connected})
	cancel()
	b.Publish(Event{Topic: Connected})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()

	var a, c int
	b.Subscribe(LinkActivated, func(Event) { a++ })
	b.Subscribe(LinkActivated, func(Event) { c++ })

	b.Publish(Event{Topic: LinkActivated})

	if a != 1 || c != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", a, c)
	}
}

type captureLogger struct {
	errors int
}

func (l *captureLogger) Error(string, ...any) { l.errors++ }

func TestHandlerPanicIsRecovered(t *testing.T) {
	b := New()
	log := &captureLogger{}
	b.SetLogger(log)

	var after int
	b.Subscribe(Connected, func(Event) { panic("boom") })
	b.Subscribe(Connected, func(Event) { after++ })

	b.Publish(Event{Topic: Connected})

	if log.errors != 1 {
		t.Errorf("logged errors = %d, want 1", log.errors)
	}
	if after != 1 {
		t.Error("panic in one handler blocked delivery to the next")
	}
}

func TestTopicString(t *testing.T) {
	tests := []struct {
		topic Topic
		want  string
	}{
		{Connected, "connected"},
		{Disconnected, "disconnected"},
		{DeviceUpdated, "device-updated"},
		{LinkActivated, "link-activated"},
	}
	for _, tt := range tests {
		if got := tt.topic.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
