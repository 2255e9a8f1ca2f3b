package util

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"sql": 3, "json": 1, "java/java": 2})
	want := []string{"java/java", "json", "sql"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortedKeys() mismatch (-want +got):\n%s", diff)
	}

	if got := SortedKeys(map[string]int(nil)); len(got) != 0 {
		t.Errorf("SortedKeys(nil) = %v, want empty", got)
	}
}

func TestEqualStringMaps(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil and empty", nil, map[string]string{}, true},
		{"equal", map[string]string{"JSON.g4": "ab"}, map[string]string{"JSON.g4": "ab"}, true},
		{"value differs", map[string]string{"JSON.g4": "ab"}, map[string]string{"JSON.g4": "cd"}, false},
		{"key added", map[string]string{"JSON.g4": "ab"}, map[string]string{"JSON.g4": "ab", "X.g4": "ef"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EqualStringMaps(tt.a, tt.b); got != tt.want {
				t.Errorf("EqualStringMaps() = %v, want %v", got, tt.want)
			}
		})
	}
}
