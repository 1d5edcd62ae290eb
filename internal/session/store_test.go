package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newSession(id string, arrival time.Time) *model.Session {
	return &model.Session{
		ID:               id,
		AgentID:          id,
		ArrivalTime:      arrival,
		SessionTimeoutAt: arrival.Add(30 * time.Second),
	}
}

func TestStore_AddGet(t *testing.T) {
	s := NewStore()
	if err := s.Add(newSession("a", t0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(newSession("a", t0)); !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("second Add err = %v, want ErrAlreadyExists", err)
	}

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.ArrivalTime = t0.Add(time.Hour)
	again, _ := s.Get("a")
	if !again.ArrivalTime.Equal(t0) {
		t.Error("mutating a returned copy changed the store")
	}

	if _, err := s.Get("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStore_Mutate(t *testing.T) {
	s := NewStore()
	if err := s.Add(newSession("a", t0)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Mutate("a", func(sess *model.Session) error {
		sess.ArrivalTime = t0.Add(time.Second)
		sess.ID = "renamed"
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if got.ID != "a" || !got.ArrivalTime.Equal(t0.Add(time.Second)) {
		t.Errorf("committed session = %+v", got)
	}

	boom := errors.New("boom")
	_, err = s.Mutate("a", func(sess *model.Session) error {
		sess.ArrivalTime = t0.Add(time.Hour)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate err = %v, want boom", err)
	}
	cur, _ := s.Get("a")
	if !cur.ArrivalTime.Equal(t0.Add(time.Second)) {
		t.Errorf("rejected mutation was applied: %v", cur.ArrivalTime)
	}

	if _, err := s.Mutate("missing", func(*model.Session) error { return nil }); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Mutate(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStore_MutateAfterRemove(t *testing.T) {
	s := NewStore()
	if err := s.Add(newSession("a", t0)); err != nil {
		t.Fatal(err)
	}
	if !s.Remove("a") {
		t.Fatal("Remove reported missing session")
	}
	if s.Remove("a") {
		t.Error("second Remove reported existing session")
	}
	_, err := s.Mutate("a", func(sess *model.Session) error {
		sess.Reserved = true
		return nil
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("late commit err = %v, want ErrNotFound", err)
	}
}

func TestStore_ReservedIsMonotonic(t *testing.T) {
	s := NewStore()
	if err := s.Add(newSession("a", t0)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Mutate("a", func(sess *model.Session) error {
		sess.Reserved = true
		sess.Reservation = &model.Reservation{Entry: "left", Exit: "right"}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Mutate("a", func(sess *model.Session) error {
		sess.Reserved = false
		return nil
	}); err == nil {
		t.Fatal("clearing reserved flag succeeded")
	}
	cur, _ := s.Get("a")
	if !cur.Reserved || cur.Reservation == nil {
		t.Errorf("session lost its reservation: %+v", cur)
	}
}

func TestStore_Iteration(t *testing.T) {
	s := NewStore()
	for i, id := range []string{"c", "a", "b"} {
		sess := newSession(id, t0.Add(time.Duration(i)*time.Second))
		sess.Reserved = id != "b"
		if err := s.Add(sess); err != nil {
			t.Fatal(err)
		}
	}

	var reserved []string
	s.ForEachReserved(func(sess *model.Session) { reserved = append(reserved, sess.ID) })
	if fmt.Sprint(reserved) != "[a c]" {
		t.Errorf("ForEachReserved visited %v, want [a c]", reserved)
	}

	var others []string
	s.ForEachExcept("a", func(sess *model.Session) {
		others = append(others, sess.ID)
		// Callbacks run outside the lock and may use the store.
		s.Remove(sess.ID)
	})
	if fmt.Sprint(others) != "[b c]" {
		t.Errorf("ForEachExcept visited %v, want [b c]", others)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_ConcurrentMutate(t *testing.T) {
	s := NewStore()
	if err := s.Add(newSession("a", t0)); err != nil {
		t.Fatal(err)
	}

	const workers, rounds = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, _ = s.Mutate("a", func(sess *model.Session) error {
					sess.ArrivalTime = sess.ArrivalTime.Add(time.Millisecond)
					sess.SessionTimeoutAt = sess.ArrivalTime.Add(30 * time.Second)
					return nil
				})
				s.ForEachExcept("", func(sess *model.Session) {
					if !sess.SessionTimeoutAt.Equal(sess.ArrivalTime.Add(30 * time.Second)) {
						t.Errorf("observed torn update: %+v", sess)
					}
				})
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get("a")
	if want := t0.Add(workers * rounds * time.Millisecond); !got.ArrivalTime.Equal(want) {
		t.Errorf("ArrivalTime = %v, want %v", got.ArrivalTime, want)
	}
}
