package main

import (
	"testing"
)

func TestParseUserIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int64
		wantErr bool
	}{
		{name: "single", input: "7", want: []int64{7}},
		{name: "list with spaces", input: "1, 2 ,3", want: []int64{1, 2, 3}},
		{name: "empty parts skipped", input: "4,,5,", want: []int64{4, 5}},
		{name: "empty", input: "", want: nil},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-3", wantErr: true},
		{name: "not a number", input: "1,abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUserIDs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("BROKERLINK_TEST_VALUE", "set")
	if got := envOr("BROKERLINK_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("envOr = %q, want set", got)
	}
	if got := envOr("BROKERLINK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envOr = %q, want fallback", got)
	}
}
