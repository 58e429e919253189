package storage

import (
	"errors"
	"testing"
	"time"

	"liquidity_go/internal/domain"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func TestPositionSingleton(t *testing.T) {
	s := setupTestDB(t)

	if _, err := s.GetPosition(); !errors.Is(err, domain.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition on empty store, got %v", err)
	}

	pos, err := domain.NewPosition(42, 1, 2, domain.Grid{BaseAmount: 10, QuoteAmounts: []int64{3, 2, 1}})
	if err != nil {
		t.Fatalf("NewPosition failed: %v", err)
	}
	if err := s.InitPosition(&pos); err != nil {
		t.Fatalf("InitPosition failed: %v", err)
	}

	got, err := s.GetPosition()
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got.Fingerprint != 42 || got.BaseWalletID != 1 || got.QuoteWalletID != 2 {
		t.Errorf("unexpected position: %+v", got)
	}

	// A second live position must be rejected.
	other, _ := domain.NewPosition(43, 3, 4, domain.Grid{BaseAmount: 10, QuoteAmounts: []int64{2, 1}})
	if err := s.InitPosition(&other); !errors.Is(err, domain.ErrPositionExists) {
		t.Errorf("expected ErrPositionExists, got %v", err)
	}
}

func TestOrderLifecycle(t *testing.T) {
	s := setupTestDB(t)

	orders := []domain.Order{
		{TradeID: "aa11", BaseDelta: -100, QuoteDelta: 6284},
		{TradeID: "bb22", BaseDelta: 100, QuoteDelta: -5740},
	}
	for i := range orders {
		if err := s.InsertOrder(&orders[i]); err != nil {
			t.Fatalf("InsertOrder failed: %v", err)
		}
	}

	t.Run("Duplicate Insert Is A NoOp", func(t *testing.T) {
		dup := domain.Order{TradeID: "aa11", BaseDelta: -100, QuoteDelta: 6284}
		if err := s.InsertOrder(&dup); err != nil {
			t.Fatalf("duplicate InsertOrder failed: %v", err)
		}
		got, _ := s.GetOrders()
		if len(got) != 2 {
			t.Errorf("got %d orders after duplicate insert, want 2", len(got))
		}
	})

	t.Run("Delete Removes One Row", func(t *testing.T) {
		if err := s.DeleteOrder("aa11"); err != nil {
			t.Fatalf("DeleteOrder failed: %v", err)
		}
		got, err := s.GetOrders()
		if err != nil {
			t.Fatalf("GetOrders failed: %v", err)
		}
		if len(got) != 1 || got[0].TradeID != "bb22" {
			t.Errorf("unexpected order set after delete: %+v", got)
		}
	})
}

func TestJobQueue(t *testing.T) {
	s := setupTestDB(t)

	later := time.Now().Add(time.Hour).UTC()
	jobs := []domain.Job{
		{HandlerName: "h1", Params: `{"a":1}`, NotBefore: &later},
		{HandlerName: "h2", Params: `{"b":2}`},
	}
	for i := range jobs {
		if err := s.AddJob(&jobs[i]); err != nil {
			t.Fatalf("AddJob failed: %v", err)
		}
	}

	t.Run("Ordered By NotBefore", func(t *testing.T) {
		got, err := s.GetJobs()
		if err != nil {
			t.Fatalf("GetJobs failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d jobs, want 2", len(got))
		}
		// Unscheduled (NULL not_before) sorts first.
		if got[0].HandlerName != "h2" || got[1].HandlerName != "h1" {
			t.Errorf("unexpected order: %s, %s", got[0].HandlerName, got[1].HandlerName)
		}
	})

	t.Run("Reschedule Pushes NotBefore", func(t *testing.T) {
		got, _ := s.GetJobs()
		id := got[0].ID
		next := time.Now().Add(2 * time.Hour).UTC()
		if err := s.RescheduleJob(id, next); err != nil {
			t.Fatalf("RescheduleJob failed: %v", err)
		}
		got, _ = s.GetJobs()
		for _, j := range got {
			if j.ID == id {
				if j.NotBefore == nil || j.NotBefore.Unix() != next.Unix() {
					t.Errorf("NotBefore = %v, want %v", j.NotBefore, next)
				}
			}
		}
	})

	t.Run("Remove Deletes The Row", func(t *testing.T) {
		got, _ := s.GetJobs()
		for _, j := range got {
			if err := s.RemoveJob(j.ID); err != nil {
				t.Fatalf("RemoveJob failed: %v", err)
			}
		}
		got, _ = s.GetJobs()
		if len(got) != 0 {
			t.Errorf("got %d jobs after removal, want 0", len(got))
		}
	})
}
