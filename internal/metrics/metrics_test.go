package metrics

import "testing"

func TestRecordOrderPlacedIncrementsCounter(t *testing.T) {
	RecordOrderPlaced("entry", "buy")
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "earningsgap_executor_orders_placed_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected orders_placed_total metric family to be registered")
	}
}

func TestSetKillSwitchEngagedTogglesGauge(t *testing.T) {
	SetKillSwitchEngaged(true)
	SetKillSwitchEngaged(false)
}
