package hosz

import (
	"strings"
	"testing"
	"time"
)

func TestEncoding(t *testing.T) {
	t.Run("Snapshot", func(t *testing.T) {
		original := Snapshot{
			DriverID: "d1",
			Events:   open(at(0, 0), Driving, s(OffDuty, 10*time.Hour)),
			Amendments: []Amendment{
				{ID: "a1", EventID: "ea", Status: SleeperBerth, Note: "slept", RecordedAt: at(12, 0)},
			},
			Documents: DocumentState{Documents: []Document{{Kind: License, Number: "X1", ExpiresAt: at(24*400, 0)}}},
			Limits:    Property60Hour7Day(),
			Version:   3,
		}

		encoded, err := Encode(original)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		decoded, err := Decode[Snapshot](encoded)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}

		if decoded.DriverID != "d1" || decoded.Version != 3 {
			t.Errorf("header = %q v%d", decoded.DriverID, decoded.Version)
		}
		if decoded.Limits != original.Limits {
			t.Errorf("limits = %+v", decoded.Limits)
		}
		if len(decoded.Events) != 2 || !decoded.Events[1].IsOpen() {
			t.Fatalf("events = %+v", decoded.Events)
		}
		if !decoded.Events[0].EndTime.Equal(at(10, 0)) || decoded.Events[1].Status != Driving {
			t.Errorf("events = %+v", decoded.Events)
		}
		if decoded.Amendments[0].Status != SleeperBerth || !decoded.Amendments[0].RecordedAt.Equal(at(12, 0)) {
			t.Errorf("amendment = %+v", decoded.Amendments[0])
		}
		if doc, ok := decoded.Documents.Get(License); !ok || !doc.ExpiresAt.Equal(at(24*400, 0)) {
			t.Errorf("license = %+v", doc)
		}
	})

	t.Run("Decode Garbage", func(t *testing.T) {
		_, err := Decode[Snapshot]([]byte{0xc1})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "decode hosz.Snapshot") {
			t.Errorf("error does not name the record type: %v", err)
		}
	})
}
