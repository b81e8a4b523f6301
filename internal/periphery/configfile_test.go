package periphery

import (
	"encoding/json"
	"math"
	"testing"
)

func TestEncodeEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    string
	}{
		{"empty", nil, "[]\n"},
		{"single", []Entry{{"pantilt", "speed", 0.003}}, "[\n[\"pantilt\", \"speed\", 0.003]\n]\n"},
		{"quoted name", []Entry{{`cam"1`, "x", -2}}, "[\n[\"cam\\\"1\", \"x\", -2]\n]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeEntries(tt.entries)
			if err != nil {
				t.Fatalf("EncodeEntries() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeEntries() = %q, want %q", got, tt.want)
			}
			var decoded []Entry
			if err := json.Unmarshal(got, &decoded); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if len(decoded) != len(tt.entries) {
				t.Errorf("decoded %d entries, want %d", len(decoded), len(tt.entries))
			}
		})
	}
}

func TestEncodeEntries_NaN(t *testing.T) {
	if _, err := EncodeEntries([]Entry{{"a", "x", math.NaN()}}); err == nil {
		t.Error("EncodeEntries() should reject NaN")
	}
}

func TestSortEntries(t *testing.T) {
	entries := []Entry{
		{"pantilt", "speed", 1}, {"camera", "iso", 1}, {"pantilt", "max_pan", 1},
	}
	SortEntries(entries)
	want := []string{"camera.iso", "pantilt.max_pan", "pantilt.speed"}
	for i, e := range entries {
		if got := e.Periphery + "." + e.Parameter; got != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestEntryUnmarshal(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`["pantilt", "max_tilt", 2300]`), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e != (Entry{"pantilt", "max_tilt", 2300}) {
		t.Errorf("Entry = %+v", e)
	}

	for _, bad := range []string{`{"a":1}`, `[1, "x", 2]`, `["a", "b", 1, 2]`, `["a", "b", null]`} {
		var e Entry
		if err := json.Unmarshal([]byte(bad), &e); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", bad)
		}
	}
}
