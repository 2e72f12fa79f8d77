package cmd

import (
	"testing"
	"time"
)

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{name: "server address", key: "server", value: "api.example.com:8080", want: "api.example.com:8080"},
		{name: "token", key: "token", value: "tok-1", want: "tok-1"},
		{name: "timeout duration", key: "timeout", value: "45s", want: 45 * time.Second},
		{name: "timeout not a duration", key: "timeout", value: "soon", wantErr: true},
		{name: "json true", key: "json", value: "true", want: true},
		{name: "json off", key: "json", value: "off", want: false},
		{name: "json garbage", key: "json", value: "maybe", wantErr: true},
		{name: "unknown key", key: "retries", value: "3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseConfigValue(%q, %q) accepted invalid input", tt.key, tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConfigValue(%q, %q) error = %v", tt.key, tt.value, err)
			}
			if got != tt.want {
				t.Errorf("parseConfigValue(%q, %q) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestConfigSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"view": false, "set": false, "init": false}
	for _, c := range configCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("config subcommand %q not registered", name)
		}
	}
}
