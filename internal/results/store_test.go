package results

import (
	"testing"
	"time"

	"pumpguard/internal/model"
)

func TestStoreKeepsLatestPerEquipment(t *testing.T) {
	s := NewStore(10)
	s.Update(model.Assessment{EquipmentID: "pump-2", Fault: model.FaultResult{Severity: model.SeverityNormal}})
	s.Update(model.Assessment{EquipmentID: "pump-1", Fault: model.FaultResult{Severity: model.SeverityNormal}})
	s.Update(model.Assessment{EquipmentID: "pump-1", Fault: model.FaultResult{Severity: model.SeverityFailure}})
	s.Update(model.Assessment{})

	got, updated, ok := s.Get("pump-1")
	if !ok || got.Fault.Severity != model.SeverityFailure {
		t.Fatalf("expected latest failure assessment, got %+v ok=%v", got, ok)
	}
	if updated.IsZero() {
		t.Fatalf("expected update time")
	}
	all := s.All()
	if len(all) != 2 || all[0].EquipmentID != "pump-1" || all[1].EquipmentID != "pump-2" {
		t.Fatalf("unexpected listing: %+v", all)
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(2)
	s.Update(model.Assessment{EquipmentID: "a"})
	time.Sleep(2 * time.Millisecond)
	s.Update(model.Assessment{EquipmentID: "b"})
	time.Sleep(2 * time.Millisecond)
	s.Update(model.Assessment{EquipmentID: "c"})
	if _, _, ok := s.Get("a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if len(s.All()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(s.All()))
	}
	s.Clear("b")
	s.Clear("")
	if len(s.All()) != 0 {
		t.Fatalf("expected empty store")
	}
}
