package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHealthRecord_Clone(t *testing.T) {
	msg := "connection refused"
	original := &HealthRecord{
		ProviderID:          uuid.New(),
		IsHealthy:           false,
		ConsecutiveFailures: 3,
		LastCheckAt:         time.Now(),
		LastError:           &msg,
	}

	clone := original.Clone()

	if clone.ProviderID != original.ProviderID || clone.ConsecutiveFailures != 3 {
		t.Error("Clone did not copy fields")
	}

	// The error pointer must not be shared
	*clone.LastError = "mutated"
	if *original.LastError != "connection refused" {
		t.Error("Clone shares the LastError pointer with the original")
	}
}

func TestHealthRecord_CloneNilError(t *testing.T) {
	original := &HealthRecord{ProviderID: uuid.New(), IsHealthy: true}

	clone := original.Clone()
	if clone.LastError != nil {
		t.Error("Expected nil LastError in clone")
	}
}

func TestHealthRecord_Stale(t *testing.T) {
	now := time.Now()
	record := &HealthRecord{LastCheckAt: now.Add(-15 * time.Minute)}

	if !record.Stale(now.Add(-10 * time.Minute)) {
		t.Error("Record checked 15m ago should be stale against a 10m cutoff")
	}
	if record.Stale(now.Add(-20 * time.Minute)) {
		t.Error("Record checked 15m ago should not be stale against a 20m cutoff")
	}
}
