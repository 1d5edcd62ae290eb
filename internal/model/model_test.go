package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{nil, CodeOK},
		{fmt.Errorf("%w: session %q", ErrNotFound, "x"), CodeNotFound},
		{ErrAlreadyExists, CodeAlreadyExists},
		{fmt.Errorf("%w: 3s too late", ErrExpired), CodeExpired},
		{ErrAlreadyReserved, CodeAlreadyReserved},
		{ErrBadRoute, CodeBadRoute},
		{ErrInvalidWindow, CodeInvalidWindow},
		{ErrNegotiationFailed, CodeNegotiationFailed},
		{&ValidationError{Errors: []FieldError{{Field: "f", Message: "m"}}}, CodeMalformedInput},
		{errors.New("boom"), CodeInternal},
	} {
		if got := Code(tc.err); got != tc.want {
			t.Errorf("Code(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestResponse_ErrRoundTrip(t *testing.T) {
	resp := ResponseFor(fmt.Errorf("%w: left -> left", ErrBadRoute))
	if resp.Success || resp.Code != CodeBadRoute {
		t.Fatalf("resp = %+v", resp)
	}
	err := resp.Err()
	if !errors.Is(err, ErrBadRoute) {
		t.Errorf("errors.Is(%v, ErrBadRoute) = false", err)
	}
	if err.Error() != "bad route: left -> left" {
		t.Errorf("Error() = %q", err.Error())
	}

	if err := ResponseFor(nil).Err(); err != nil {
		t.Errorf("success response Err() = %v", err)
	}
	if err := (Response{Code: "weird"}).Err(); errors.Is(err, ErrNotFound) || err == nil {
		t.Errorf("unknown code error = %v", err)
	}
}

func TestSession_CloneIsolation(t *testing.T) {
	s := &Session{
		ID:       "svea2-abc",
		Reserved: true,
		Reservation: &Reservation{
			Entry: "left", Exit: "right", LatestEntry: 2,
		},
	}
	c := s.Clone()
	c.Reservation.LatestEntry = 9
	c.Reserved = false
	if s.Reservation.LatestEntry != 2 || !s.Reserved {
		t.Errorf("mutating clone changed original: %+v", s.Reservation)
	}
	if s.Phase() != PhaseReserved || c.Phase() != PhaseConnected {
		t.Errorf("phases = %s, %s", s.Phase(), c.Phase())
	}
}

func TestSession_Expired(t *testing.T) {
	timeout := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	s := &Session{SessionTimeoutAt: timeout}
	if s.Expired(timeout.Add(-time.Millisecond)) {
		t.Error("expired before timeout")
	}
	if !s.Expired(timeout) {
		t.Error("not expired at timeout")
	}
}

func TestPackBits(t *testing.T) {
	v := []bool{true, false, true, true, false, false, false, false, true, false}
	l := Limits{Rows: 2, Cols: 5, Bits: PackBits(v)}
	if len(l.Bits) != 2 {
		t.Fatalf("len(Bits) = %d, want 2", len(l.Bits))
	}
	for i, want := range v {
		if got := l.Allowed(i/5, i%5); got != want {
			t.Errorf("Allowed(%d, %d) = %v, want %v", i/5, i%5, got, want)
		}
	}
	if l.Allowed(2, 0) || l.Allowed(0, -1) {
		t.Error("out-of-range cells must not be allowed")
	}
}
