package server

import "testing"

func TestStateAddPlayerEmitsFullRecord(t *testing.T) {
	s := newRoomState()
	s.addPlayer(PlayerRecord{SessionID: "s1", AccountID: "a1", Name: "Rook", X: 2, Y: 2})

	patches := s.drain()
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	if patches[0].Kind != PatchPlayerAdded || patches[0].EntityID != "s1" {
		t.Fatalf("unexpected patch: %+v", patches[0])
	}
	record, ok := patches[0].Payload.(PlayerRecord)
	if !ok {
		t.Fatalf("expected full record payload, got %T", patches[0].Payload)
	}
	if record.Name != "Rook" || record.X != 2 || record.Y != 2 {
		t.Fatalf("payload not fully populated: %+v", record)
	}
}

func TestStateSetPositionEmitsUpdate(t *testing.T) {
	s := newRoomState()
	s.addPlayer(PlayerRecord{SessionID: "s1", X: 2, Y: 2})
	s.drain()

	s.setPosition("s1", 2, 1, 7)
	patches := s.drain()
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	payload, ok := patches[0].Payload.(PlayerUpdatePayload)
	if !ok {
		t.Fatalf("expected update payload, got %T", patches[0].Payload)
	}
	if payload.X != 2 || payload.Y != 1 || payload.LastProcessedSeq != 7 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	record, _ := s.player("s1")
	if record.X != 2 || record.Y != 1 || record.LastProcessedSeq != 7 {
		t.Fatalf("record not mutated: %+v", record)
	}
}

func TestStateSetPositionUnknownSessionIsNoop(t *testing.T) {
	s := newRoomState()
	s.setPosition("ghost", 1, 1, 1)
	if patches := s.drain(); patches != nil {
		t.Fatalf("expected no patches for unknown session, got %d", len(patches))
	}
}

func TestStateRemovePlayer(t *testing.T) {
	s := newRoomState()
	s.addPlayer(PlayerRecord{SessionID: "s1"})
	s.drain()

	s.removePlayer("s1")
	patches := s.drain()
	if len(patches) != 1 || patches[0].Kind != PatchPlayerRemoved {
		t.Fatalf("expected a removal patch, got %+v", patches)
	}
	if _, ok := s.player("s1"); ok {
		t.Fatalf("expected player to be gone")
	}

	// Removing twice emits nothing further.
	s.removePlayer("s1")
	if patches := s.drain(); patches != nil {
		t.Fatalf("expected no patches on double remove, got %d", len(patches))
	}
}

func TestStateDrainResetsPending(t *testing.T) {
	s := newRoomState()
	s.addPlayer(PlayerRecord{SessionID: "s1"})
	if patches := s.drain(); len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	if patches := s.drain(); patches != nil {
		t.Fatalf("expected drained state to be empty, got %d", len(patches))
	}
}

func TestStateSnapshotOrdered(t *testing.T) {
	s := newRoomState()
	s.addPlayer(PlayerRecord{SessionID: "s2", Name: "B"})
	s.addPlayer(PlayerRecord{SessionID: "s1", Name: "A"})
	s.addPlayer(PlayerRecord{SessionID: "s3", Name: "C"})

	snapshot := s.snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snapshot))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if snapshot[i].SessionID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, snapshot[i].SessionID)
		}
	}
}
