package events

import (
	"context"
	"testing"
)

func TestBus_EmitCallsSubscribersInOrder(t *testing.T) {
	b := NewBus(nil)
	var got []string
	b.On("a", func(ctx context.Context, p any) { got = append(got, "first:"+p.(string)) }, "x")
	b.On("b", func(ctx context.Context, p any) { got = append(got, "other") }, "x")
	b.On("a", func(ctx context.Context, p any) { got = append(got, "second:"+p.(string)) }, "y")

	b.Emit(context.Background(), "a", "hi")

	want := []string{"first:hi", "second:hi"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_OffRemovesOnlyOwner(t *testing.T) {
	b := NewBus(nil)
	calls := map[string]int{}
	b.On("calendar:event-create", func(ctx context.Context, p any) { calls["calendar"]++ }, "calendar")
	b.On("journal:entry-saved", func(ctx context.Context, p any) { calls["calendar"]++ }, "calendar")
	b.On("journal:entry-saved", func(ctx context.Context, p any) { calls["journal"]++ }, "journal")

	b.Off("calendar")

	if n := b.Subscriptions("calendar"); n != 0 {
		t.Fatalf("calendar still holds %d subscriptions", n)
	}
	b.Emit(context.Background(), "calendar:event-create", nil)
	b.Emit(context.Background(), "journal:entry-saved", nil)

	if calls["calendar"] != 0 {
		t.Errorf("calendar handlers called %d times after Off", calls["calendar"])
	}
	if calls["journal"] != 1 {
		t.Errorf("journal handler called %d times, want 1", calls["journal"])
	}
}

func TestBus_HandlerMayEmit(t *testing.T) {
	b := NewBus(nil)
	var created bool
	b.On("create", func(ctx context.Context, p any) { b.Emit(ctx, "created", p) }, "x")
	b.On("created", func(ctx context.Context, p any) { created = true }, "y")

	b.Emit(context.Background(), "create", nil)

	if !created {
		t.Fatal("nested emit did not reach its handler")
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	b := NewBus(nil)
	var reached bool
	b.On("a", func(ctx context.Context, p any) { panic("boom") }, "x")
	b.On("a", func(ctx context.Context, p any) { reached = true }, "y")

	b.Emit(context.Background(), "a", nil)

	if !reached {
		t.Fatal("second handler not called")
	}
}
