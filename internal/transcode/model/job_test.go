// SPDX-License-Identifier: MIT

package model

import "testing"

func TestTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateQueued, StateRunning, true},
		{StateQueued, StateFailed, true},
		{StateQueued, StateReady, false},
		{StateRunning, StateReady, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateQueued, false},
		{StateReady, StateFailed, false},
		{StateReady, StateRunning, false},
		{StateFailed, StateQueued, false},
		{StateFailed, StateRunning, false},
	}
	for _, tc := range cases {
		j := &Job{JobID: "j1", State: tc.from}
		err := j.Transition(tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("%s -> %s: expected error", tc.from, tc.to)
			}
			if j.State != tc.from {
				t.Errorf("%s -> %s: state mutated on rejected transition", tc.from, tc.to)
			}
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if StateQueued.IsTerminal() || StateRunning.IsTerminal() {
		t.Fatal("queued/running must not be terminal")
	}
	if !StateReady.IsTerminal() || !StateFailed.IsTerminal() {
		t.Fatal("ready/failed must be terminal")
	}
}

func TestKey(t *testing.T) {
	if Key(42, ProfileHLS) != "42/hls" {
		t.Fatalf("unexpected key: %s", Key(42, ProfileHLS))
	}
	j := &Job{MediaID: 7, Profile: ProfileLow}
	if j.Key() != "7/low" {
		t.Fatalf("unexpected key: %s", j.Key())
	}
}
