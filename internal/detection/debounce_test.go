package detection

import (
	"testing"
	"time"

	"github.com/drowsyguard/backend/internal/models"
)

func TestDebouncerFiresAtThreshold(t *testing.T) {
	d := NewDebouncer(DebounceConfig{})
	now := time.Unix(1000, 0)

	if d.Observe(models.ClassDrowsy, now) {
		t.Fatal("alarm fired on first drowsy frame")
	}
	if d.Observe(models.ClassDrowsy, now.Add(time.Second)) {
		t.Fatal("alarm fired on second drowsy frame")
	}
	if !d.Observe(models.ClassDrowsy, now.Add(2*time.Second)) {
		t.Fatal("alarm did not fire on third consecutive drowsy frame")
	}
}

func TestDebouncerResetOnNonDrowsy(t *testing.T) {
	d := NewDebouncer(DebounceConfig{})
	now := time.Unix(1000, 0)

	d.Observe(models.ClassDrowsy, now)
	d.Observe(models.ClassDrowsy, now)
	d.Observe(models.ClassAwake, now)
	if d.Streak() != 0 {
		t.Fatalf("expected streak reset, got %d", d.Streak())
	}
	d.Observe(models.ClassDrowsy, now)
	if d.Observe(models.ClassDrowsy, now) {
		t.Fatal("alarm fired two frames after reset")
	}

	// Yawn resets too.
	d.Observe(models.ClassYawn, now)
	if d.Streak() != 0 {
		t.Fatalf("expected streak reset on yawn, got %d", d.Streak())
	}
}

func TestDebouncerCooldown(t *testing.T) {
	d := NewDebouncer(DebounceConfig{})
	now := time.Unix(1000, 0)

	d.Observe(models.ClassDrowsy, now)
	d.Observe(models.ClassDrowsy, now)
	if !d.Observe(models.ClassDrowsy, now) {
		t.Fatal("expected first alarm")
	}

	// Streak stays over threshold but the cooldown suppresses re-alarms.
	for i := 1; i < 10; i++ {
		if d.Observe(models.ClassDrowsy, now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("alarm re-fired %ds after first, inside cooldown", i)
		}
	}
	if !d.Observe(models.ClassDrowsy, now.Add(10*time.Second)) {
		t.Fatal("expected second alarm once cooldown elapsed")
	}
}

func TestDebouncerCustomTriggerFrames(t *testing.T) {
	d := NewDebouncer(DebounceConfig{TriggerFrames: 5})
	now := time.Unix(1000, 0)

	for i := 0; i < 4; i++ {
		if d.Observe(models.ClassDrowsy, now) {
			t.Fatalf("alarm fired on frame %d with threshold 5", i+1)
		}
	}
	if !d.Observe(models.ClassDrowsy, now) {
		t.Fatal("alarm did not fire on fifth drowsy frame")
	}
}
