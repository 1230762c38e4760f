package events

import (
	"testing"

	"github.com/webosce/audiod-pro/internal/audio"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(KindMixerStatus, func(Event) { order = append(order, "first") })
	bus.Subscribe(KindMixerStatus, func(Event) { order = append(order, "second") })
	bus.Subscribe(KindSinkStatus, func(Event) { order = append(order, "other") })

	bus.Publish(NewMixerStatusEvent(true, audio.MixerPulse))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	id := bus.Subscribe(KindRegisterTrack, func(Event) { count++ })
	kept := 0
	bus.Subscribe(KindRegisterTrack, func(Event) { kept++ })

	bus.Publish(NewRegisterTrackEvent("t1", "pmedia"))
	if !bus.Unsubscribe(id) {
		t.Fatalf("expected Unsubscribe to find subscription")
	}
	if bus.Unsubscribe(id) {
		t.Fatalf("expected second Unsubscribe to report false")
	}
	bus.Publish(NewRegisterTrackEvent("t2", "pmedia"))

	if count != 1 {
		t.Errorf("unsubscribed handler called %d times, want 1", count)
	}
	if kept != 2 {
		t.Errorf("remaining handler called %d times, want 2", kept)
	}
}

func TestBusUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	var id SubscriptionID
	calls := 0
	id = bus.Subscribe(KindUnregisterTrack, func(Event) {
		calls++
		bus.Unsubscribe(id)
	})

	bus.Publish(NewUnregisterTrackEvent("t1"))
	bus.Publish(NewUnregisterTrackEvent("t1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestEventKinds(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		kind  Kind
	}{
		{"SinkStatus", NewSinkStatusEvent("", "", "pmedia", audio.StreamOpened, audio.MixerPulse, 3, ""), KindSinkStatus},
		{"SourceStatus", NewSourceStatusEvent("", "", "precord", audio.StreamClosed, audio.MixerPulse), KindSourceStatus},
		{"DeviceConnection", NewDeviceConnectionEvent("usb", "", true, true, audio.MixerPulse), KindDeviceConnection},
		{"MasterVolume", NewMasterVolumeEvent("alsa", 10, false, 0), KindMasterVolume},
		{"InputVolume", NewInputVolumeEvent("pmedia", 40, false), KindInputVolume},
		{"CurrentInputVolume", NewCurrentInputVolumeEvent("pmedia", 40), KindCurrentInputVolume},
		{"VolumeReport", NewVolumeReportEvent("pmedia", false, 40), KindVolumeReport},
		{"StreamStatus", NewStreamStatusEvent(false, nil), KindStreamStatus},
		{"PlaybackStatus", NewPlaybackStatusEvent("p1", "done"), KindPlaybackStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", tt.event.Kind(), tt.kind)
			}
			if tt.event.Kind().String() != tt.name {
				t.Errorf("Kind().String() = %q, want %q", tt.event.Kind().String(), tt.name)
			}
			if tt.event.Timestamp().IsZero() {
				t.Errorf("expected timestamp to be set")
			}
		})
	}
}
