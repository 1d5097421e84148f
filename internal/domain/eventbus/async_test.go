package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishAsyncDeliversToSubscribers(t *testing.T) {
	bus := NewAsyncEventBus(2, nil)
	bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var got []string
	if err := bus.Subscribe(EventRecognitionCompleted, func(data RecognitionEventData) {
		mu.Lock()
		got = append(got, data.Latex)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, latex := range []string{"a", "b", "c"} {
		if !bus.PublishAsync(EventRecognitionCompleted, RecognitionEventData{Latex: latex}) {
			t.Fatalf("publish %q dropped", latex)
		}
	}
	bus.WaitAsync()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", got)
	}
}

func TestPanickingHandlerDoesNotKillWorker(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)
	bus.Start()
	defer bus.Stop()

	calls := 0
	if err := bus.Subscribe(EventRecognitionFailed, func(data RecognitionEventData) {
		calls++
		if data.ErrorKind == "boom" {
			panic("boom")
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.PublishAsync(EventRecognitionFailed, RecognitionEventData{ErrorKind: "boom"})
	bus.PublishAsync(EventRecognitionFailed, RecognitionEventData{ErrorKind: "upstream"})
	bus.WaitAsync()

	if calls != 2 {
		t.Fatalf("expected worker to survive panic, calls=%d", calls)
	}
}

func TestPublishAfterStopIsDropped(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)
	bus.Start()
	bus.Stop()
	bus.Stop()

	if bus.PublishAsync(EventRecognitionCompleted, RecognitionEventData{}) {
		t.Fatal("expected publish after stop to be dropped")
	}
}

func waitAsyncWithin(t *testing.T, bus *AsyncEventBus, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		bus.WaitAsync()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("WaitAsync did not return")
	}
}

func TestPublishRacingStopNeverStrandsEvents(t *testing.T) {
	for i := 0; i < 50; i++ {
		bus := NewAsyncEventBus(2, nil)
		bus.Start()

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 20; n++ {
					bus.PublishAsync(EventRecognitionCompleted, RecognitionEventData{})
				}
			}()
		}
		bus.Stop()
		wg.Wait()

		waitAsyncWithin(t, bus, 2*time.Second)
	}
}

func TestStopDispatchesEventsOfUnstartedBus(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)

	delivered := 0
	if err := bus.Subscribe(EventRecognitionCompleted, func(RecognitionEventData) {
		delivered++
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !bus.PublishAsync(EventRecognitionCompleted, RecognitionEventData{}) {
		t.Fatal("publish dropped")
	}
	bus.Stop()

	waitAsyncWithin(t, bus, time.Second)
	if delivered != 1 {
		t.Fatalf("expected queued event to be dispatched on stop, got %d", delivered)
	}
}
