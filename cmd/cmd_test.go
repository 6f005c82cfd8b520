package cmd

import (
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"work":    false,
		"index":   false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q is not registered", name)
		}
	}
}

func TestVersionDefaults(t *testing.T) {
	if AppVersion == "" {
		t.Error("AppVersion must not be empty")
	}
}
