package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecordMessageUpdatesPerSN(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.RecordMessage("TM20-001")
	reg.RecordMessage("TM20-001")
	reg.RecordMessage("TM20-002")

	bySN := map[string]int64{}
	for _, s := range reg.PerSN() {
		bySN[s.SN] = s.Messages
	}

	if bySN["TM20-001"] != 2 {
		t.Errorf("TM20-001 messages = %d, want 2", bySN["TM20-001"])
	}
	if bySN["TM20-002"] != 1 {
		t.Errorf("TM20-002 messages = %d, want 1", bySN["TM20-002"])
	}
}

func TestRecordLogAccumulatesCount(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.RecordLog("TM20-001", 3)
	reg.RecordLog("TM20-001", 2)

	for _, s := range reg.PerSN() {
		if s.SN == "TM20-001" && s.Logs != 5 {
			t.Errorf("logs = %d, want 5", s.Logs)
		}
	}
}

func TestActiveConnectionsTracksIncDec(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.IncActive()
	reg.IncActive()
	reg.DecActive()

	snap := reg.Snapshot()
	if snap.ActiveConnections != 1 {
		t.Errorf("active connections = %v, want 1", snap.ActiveConnections)
	}
}
