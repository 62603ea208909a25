package netmon

import "testing"

func TestManualMonitorTransitions(t *testing.T) {
	m := NewManualMonitor(true)
	if !m.Online() {
		t.Fatal("monitor not online initially")
	}

	var seen []bool
	m.Subscribe(func(online bool) { seen = append(seen, online) })

	m.SetOnline(true) // no transition
	m.SetOnline(false)
	m.SetOnline(false) // no transition
	m.SetOnline(true)

	if m.Online() != true {
		t.Fatal("monitor not online after final transition")
	}
	if len(seen) != 2 || seen[0] != false || seen[1] != true {
		t.Fatalf("transitions = %v, want [false true]", seen)
	}
}
