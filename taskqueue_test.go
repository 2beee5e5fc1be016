package ftp

import (
	"testing"
	"time"
)

func TestTaskQueue_LockUnlock(t *testing.T) {
	q := newTaskQueue(nil, time.Second)
	q.lock()
	q.unlock()
}

func TestTaskQueue_ControlDeadline_NoTimeout(t *testing.T) {
	q := newTaskQueue(nil, 0)
	q.lock()
	defer q.unlock()
	if dl := q.controlDeadlineLocked(); !dl.IsZero() {
		t.Errorf("expected zero deadline when timeout is 0, got %v", dl)
	}
}

func TestTaskQueue_ControlDeadline_WithTimeout(t *testing.T) {
	q := newTaskQueue(nil, 5*time.Second)
	q.lock()
	defer q.unlock()
	before := time.Now()
	dl := q.controlDeadlineLocked()
	if dl.IsZero() {
		t.Fatal("expected non-zero deadline")
	}
	if dl.Before(before.Add(4 * time.Second)) {
		t.Errorf("deadline %v too soon relative to %v", dl, before)
	}
}

func TestTaskQueue_TransferringSuspendsDeadline(t *testing.T) {
	q := newTaskQueue(nil, 5*time.Second)
	q.lock()
	defer q.unlock()

	q.onDataStartLocked()
	if dl := q.controlDeadlineLocked(); !dl.IsZero() {
		t.Errorf("expected zero deadline while transferring, got %v", dl)
	}

	q.onDataDoneLocked()
	if dl := q.controlDeadlineLocked(); dl.IsZero() {
		t.Error("expected deadline to resume after onDataDoneLocked")
	}
}
