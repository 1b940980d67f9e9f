package hook

import "testing"

func TestDispatchOrderedAndWildcard(t *testing.T) {
	b := NewBus()

	var order []string
	b.Subscribe("JOIN", func(ev Event) { order = append(order, "specific-1") })
	b.Subscribe("JOIN", func(ev Event) { order = append(order, "specific-2") })
	b.SubscribeAll(func(ev Event) { order = append(order, "wildcard") })

	b.Dispatch(Event{Network: "test", Name: "JOIN", Payload: Payload{"uid": "1AAAAAAAB"}})

	want := []string{"specific-1", "specific-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, wanted %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, wanted %s", i, order[i], want[i])
		}
	}
}

func TestDispatchSurvivesPanickingSubscriber(t *testing.T) {
	b := NewBus()

	called := false
	b.Subscribe("QUIT", func(ev Event) { panic("boom") })
	b.Subscribe("QUIT", func(ev Event) { called = true })

	b.Dispatch(Event{Network: "test", Name: "QUIT"})

	if !called {
		t.Error("second subscriber was not invoked after the first panicked")
	}
}

func TestDispatchOnlyMatchesRegisteredName(t *testing.T) {
	b := NewBus()
	var got []Event
	b.Subscribe("PART", func(ev Event) { got = append(got, ev) })

	b.Dispatch(Event{Network: "test", Name: "JOIN"})

	if len(got) != 0 {
		t.Errorf("PART subscriber invoked for a JOIN event: %v", got)
	}
}
