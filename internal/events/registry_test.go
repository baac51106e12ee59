package events

import "testing"

func TestRegistryFIFOOrder(t *testing.T) {
	reg := NewRegistry()
	runID := reg.CreateRun()
	ch, ok := reg.Subscribe(runID)
	if !ok {
		t.Fatalf("expected subscription for fresh run")
	}

	reg.Publish(runID, TypeSection, map[string]any{"title": "INTENT"})
	reg.Publish(runID, TypeKV, map[string]any{"key": "intent", "value": "SELL_ITEM"})
	reg.Publish(runID, TypeBlock, map[string]any{"label": "raw", "text": "..."})
	reg.CloseRun(runID)

	expected := []string{TypeSection, TypeKV, TypeBlock, TypeDone}
	var got []string
	for ev := range ch {
		got = append(got, ev.Type)
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d events got %d: %v", len(expected), len(got), got)
	}
	for i, typ := range expected {
		if got[i] != typ {
			t.Fatalf("position %d: expected %s got %s", i, typ, got[i])
		}
	}
}

func TestRegistryUnknownRun(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Subscribe("no-such-run"); ok {
		t.Fatalf("expected no subscription for unknown run")
	}

	// unknown runs are silent no-ops
	reg.Publish("no-such-run", TypeKV, map[string]any{"key": "x"})
	reg.CloseRun("no-such-run")
}

func TestRegistryPublishAfterClose(t *testing.T) {
	reg := NewRegistry()
	runID := reg.CreateRun()
	ch, _ := reg.Subscribe(runID)

	reg.CloseRun(runID)
	reg.Publish(runID, TypeKV, map[string]any{"key": "late"})

	var got []string
	for ev := range ch {
		got = append(got, ev.Type)
	}
	if len(got) != 1 || got[0] != TypeDone {
		t.Fatalf("expected only the done event, got %v", got)
	}
}

func TestRegistryIsolatesRuns(t *testing.T) {
	reg := NewRegistry()
	first := reg.CreateRun()
	second := reg.CreateRun()
	if first == second {
		t.Fatalf("run ids must be unique")
	}

	chFirst, _ := reg.Subscribe(first)
	reg.Publish(first, TypeKV, map[string]any{"key": "only-first"})
	reg.CloseRun(first)
	reg.CloseRun(second)

	count := 0
	for ev := range chFirst {
		if ev.Type == TypeKV {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one kv event on first run, got %d", count)
	}
}

func TestRegistryDropsWhenBufferFull(t *testing.T) {
	reg := NewRegistry()
	runID := reg.CreateRun()

	for i := 0; i < runBuffer+10; i++ {
		reg.Publish(runID, TypeKV, map[string]any{"i": i})
	}
	reg.CloseRun(runID)

	ch, ok := reg.Subscribe(runID)
	if ok || ch != nil {
		t.Fatalf("closed run must not be subscribable")
	}
}
