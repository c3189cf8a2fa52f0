package progress

import "testing"

func TestStatus_Terminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:     false,
		StatusCloning:     false,
		StatusCompleted:   true,
		StatusFailed:      true,
		StatusCancelled:   true,
		StatusInterrupted: true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("Status(%q).Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTopic(t *testing.T) {
	if got, want := topic("abc"), "task_progress:abc"; got != want {
		t.Fatalf("topic() = %q, want %q", got, want)
	}
}

func TestLocalFanout_BroadcastDeliversToListener(t *testing.T) {
	f := NewLocalFanout()
	ch, stop := f.Listen("task-1")
	defer stop()

	f.Broadcast("task-1", Event{Status: StatusParsing, Stage: "parse"})

	select {
	case ev := <-ch:
		if ev.Status != StatusParsing {
			t.Fatalf("status = %q, want %q", ev.Status, StatusParsing)
		}
	default:
		t.Fatal("expected buffered event to be immediately available")
	}
}

func TestLocalFanout_BroadcastIgnoresOtherTasks(t *testing.T) {
	f := NewLocalFanout()
	ch, stop := f.Listen("task-1")
	defer stop()

	f.Broadcast("task-2", Event{Status: StatusParsing})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for unrelated task: %+v", ev)
	default:
	}
}

func TestLocalFanout_StopClosesChannel(t *testing.T) {
	f := NewLocalFanout()
	ch, stop := f.Listen("task-1")
	stop()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after stop")
	}
}
