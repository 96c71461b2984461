package metrics

import "testing"

func TestSnapshotDerivesSuccessRate(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.IncRequests()
	}
	for i := 0; i < 3; i++ {
		c.IncRequestsFailed()
	}

	s := c.Snapshot()
	if s.RequestsTotal != 10 {
		t.Fatalf("RequestsTotal = %d, want 10", s.RequestsTotal)
	}
	if s.RequestsFailed != 3 {
		t.Fatalf("RequestsFailed = %d, want 3", s.RequestsFailed)
	}
	if want := 0.7; s.SuccessRate < want-0.0001 || s.SuccessRate > want+0.0001 {
		t.Fatalf("SuccessRate = %v, want %v", s.SuccessRate, want)
	}
}

func TestSnapshotSuccessRateWithNoRequests(t *testing.T) {
	c := New()
	s := c.Snapshot()
	if s.SuccessRate != 1 {
		t.Fatalf("SuccessRate with zero requests = %v, want 1", s.SuccessRate)
	}
}

func TestGaugesReflectSets(t *testing.T) {
	c := New()
	c.SetBlocksLocal(42)
	c.SetBytesStored(123456)
	c.SetPeersConnected(7)

	s := c.Snapshot()
	if s.BlocksLocal != 42 {
		t.Errorf("BlocksLocal = %d, want 42", s.BlocksLocal)
	}
	if s.BytesStored != 123456 {
		t.Errorf("BytesStored = %d, want 123456", s.BytesStored)
	}
	if s.PeersConnected != 7 {
		t.Errorf("PeersConnected = %d, want 7", s.PeersConnected)
	}
	if s.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %v, want >= 0", s.UptimeSeconds)
	}
}

func TestIndependentCollectorsDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.IncRequests()
	if got := b.Snapshot().RequestsTotal; got != 0 {
		t.Fatalf("second collector saw %d requests from the first", got)
	}
}
