package queue

import (
	"testing"

	"pledgeball_sync/internal/models"
)

func policySnapshot() *models.QueueSnapshot {
	return &models.QueueSnapshot{
		EventIDs: []int64{7, 9},
		ByEvent: map[int64][]models.Submission{
			7: {{EventID: 7, Email: "old7@x.com"}, {EventID: 7, Email: "new7@x.com"}},
			9: {{EventID: 9, Email: "old9@x.com"}, {EventID: 9, Email: "new9@x.com"}},
		},
	}
}

func TestLIFOPolicyPicksLastEventLastSubmission(t *testing.T) {
	eventID, sub, ok := LIFOPolicy{}.Select(policySnapshot())
	if !ok {
		t.Fatal("no selection from non-empty snapshot")
	}
	if eventID != 9 || sub.Email != "new9@x.com" {
		t.Fatalf("lifo selected (%d, %s), want (9, new9@x.com)", eventID, sub.Email)
	}
}

func TestFIFOPolicyPicksFirstEventOldestSubmission(t *testing.T) {
	eventID, sub, ok := FIFOPolicy{}.Select(policySnapshot())
	if !ok {
		t.Fatal("no selection from non-empty snapshot")
	}
	if eventID != 7 || sub.Email != "old7@x.com" {
		t.Fatalf("fifo selected (%d, %s), want (7, old7@x.com)", eventID, sub.Email)
	}
}

func TestPolicySelectOnEmptySnapshot(t *testing.T) {
	empty := &models.QueueSnapshot{ByEvent: map[int64][]models.Submission{}}
	if _, _, ok := (LIFOPolicy{}).Select(empty); ok {
		t.Fatal("lifo selected from empty snapshot")
	}
	if _, _, ok := (FIFOPolicy{}).Select(nil); ok {
		t.Fatal("fifo selected from nil snapshot")
	}
}

func TestPolicyByName(t *testing.T) {
	if got := PolicyByName("fifo").Name(); got != "fifo" {
		t.Fatalf("PolicyByName(fifo) = %s", got)
	}
	if got := PolicyByName("anything-else").Name(); got != "lifo" {
		t.Fatalf("PolicyByName default = %s, want lifo", got)
	}
}
