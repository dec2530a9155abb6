// SPDX-License-Identifier: MIT

package worker

import (
	"strings"
	"testing"
)

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=100",
		"out_time_us=4000000",
		"total_size=524288",
		"speed=2.5x",
		"progress=continue",
		"frame=200",
		"out_time_us=8000000",
		"total_size=1048576",
		"speed=2.4x",
		"progress=end",
	}, "\n")

	ch := make(chan Progress, 10)
	parseProgress(strings.NewReader(input), ch)
	close(ch)

	var got []Progress
	for p := range ch {
		got = append(got, p)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 progress flushes, got %d", len(got))
	}
	if got[0].Frame != 100 || got[0].OutTimeUs != 4000000 || got[0].Speed != "2.5x" {
		t.Errorf("first flush mismatch: %+v", got[0])
	}
	if got[1].Frame != 200 || got[1].TotalSize != 1048576 {
		t.Errorf("second flush mismatch: %+v", got[1])
	}
}

func TestParseProgressIgnoresGarbage(t *testing.T) {
	input := "not a kv line\nframe=abc\n\nout_time_us=500\nprogress=end\n"
	ch := make(chan Progress, 10)
	parseProgress(strings.NewReader(input), ch)
	close(ch)

	p, ok := <-ch
	if !ok {
		t.Fatal("expected one flush")
	}
	if p.Frame != 0 || p.OutTimeUs != 500 {
		t.Errorf("unexpected snapshot: %+v", p)
	}
}

func TestProgressHasAdvanced(t *testing.T) {
	base := Progress{Frame: 10, OutTimeUs: 1000, TotalSize: 100}
	if (Progress{Frame: 10, OutTimeUs: 1000, TotalSize: 100}).hasAdvanced(base) {
		t.Error("identical snapshot counted as progress")
	}
	if !(Progress{Frame: 11, OutTimeUs: 1000, TotalSize: 100}).hasAdvanced(base) {
		t.Error("frame advance not detected")
	}
	if !(Progress{Frame: 10, OutTimeUs: 2000, TotalSize: 100}).hasAdvanced(base) {
		t.Error("time advance not detected")
	}
}
