package device

import (
	"testing"
	"time"
)

func TestSensor_Slaves(t *testing.T) {
	s := NewSensor(" Lux-1 ", "Hall light level", "lx")
	if s.ID != "lux-1" {
		t.Fatalf("ID = %q, want lux-1", s.ID)
	}

	a := New("a", "A", TypeLight)
	b := New("b", "B", TypeLight)

	if !s.AddSlave(a) || !s.AddSlave(b) {
		t.Fatal("AddSlave should accept new devices")
	}
	if s.AddSlave(New("A", "copy of A", TypeLight)) {
		t.Error("AddSlave should reject a duplicate id")
	}
	if !s.HasSlave("B") {
		t.Error("HasSlave(B) = false")
	}

	if got := s.Slaves(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Slaves() = %v, want [a b] in link order", ids(got))
	}

	if !s.RemoveSlave("a") || s.RemoveSlave("a") {
		t.Error("RemoveSlave should succeed once")
	}
	if snap := s.Snapshot(); len(snap.Slaves) != 1 || snap.Slaves[0] != "b" {
		t.Errorf("Snapshot().Slaves = %v, want [b]", snap.Slaves)
	}
}

func TestSensor_Update(t *testing.T) {
	s := NewSensor("temp", "Temperature", "C")
	d := New("heater", "Heater", TypeThermostat)
	s.AddSlave(d)

	if s.HasReading() {
		t.Fatal("new sensor should have no reading")
	}
	if s.Snapshot().UpdatedAt != nil {
		t.Error("Snapshot().UpdatedAt should be nil before the first reading")
	}

	at := time.Date(2025, 7, 4, 15, 30, 0, 0, time.UTC)
	slaves := s.Update(19.5, at)

	if len(slaves) != 1 || slaves[0] != d {
		t.Errorf("Update() slaves = %v", ids(slaves))
	}
	v, ts := s.Reading()
	if v != 19.5 || !ts.Equal(at) {
		t.Errorf("Reading() = %v at %v", v, ts)
	}

	// The returned slice is a copy.
	slaves[0] = nil
	if s.Slaves()[0] != d {
		t.Error("Update() returned the internal slave slice")
	}
}
