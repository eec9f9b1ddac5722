package id

import (
	"testing"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("New returned duplicate ids %q", a)
	}
	for _, v := range []string{a, b} {
		if !IsUUID(v) {
			t.Errorf("New() = %q, not a UUID", v)
		}
	}
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"550e8400e29b41d4a716446655440000", false},
		{"c1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsUUID(tt.in); got != tt.want {
			t.Errorf("IsUUID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShort(t *testing.T) {
	if got := Short("550e8400-e29b-41d4-a716-446655440000"); got != "550e8400" {
		t.Errorf("Short = %q", got)
	}
	if got := Short("c1"); got != "c1" {
		t.Errorf("Short(c1) = %q", got)
	}
}

func TestResolve(t *testing.T) {
	candidates := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550e9999-e29b-41d4-a716-446655440000",
		"7c9e6679-7425-40de-944b-e07fc1f90ae7",
	}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "exact", ref: candidates[2], want: candidates[2]},
		{name: "unique prefix", ref: "7c9e", want: candidates[2]},
		{name: "uppercase prefix", ref: "7C9E", want: candidates[2]},
		{name: "ambiguous", ref: "550e", wantErr: true},
		{name: "no match", ref: "ffff", wantErr: true},
		{name: "empty", ref: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.ref, candidates)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}
