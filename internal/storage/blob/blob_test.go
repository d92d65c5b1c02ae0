package blob

import "testing"

func TestNewHandle_UniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		h := NewHandle()
		if !ValidHandle(h) {
			t.Fatalf("NewHandle() = %q — некорректный формат", h)
		}
		if seen[h] {
			t.Fatalf("NewHandle() повторил handle %q", h)
		}
		seen[h] = true
	}
}

func TestValidHandle(t *testing.T) {
	tests := []struct {
		handle string
		want   bool
	}{
		{"65f1a2b3c4d5e6f708192a3b", true},
		{"65F1A2B3C4D5E6F708192A3B", false},
		{"65f1a2b3c4d5e6f708192a3", false},
		{"../../etc/passwd0000000", false},
		{"", false},
		{"zzf1a2b3c4d5e6f708192a3b", false},
	}
	for _, tt := range tests {
		if got := ValidHandle(tt.handle); got != tt.want {
			t.Errorf("ValidHandle(%q) = %v, ожидается %v", tt.handle, got, tt.want)
		}
	}
}
