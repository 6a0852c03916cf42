package main

import (
	"strings"
	"testing"

	"github.com/onnwee/ooye-live/config"
)

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(*config.Config) string
	}{
		{
			name: "defaults untouched",
			args: nil,
			check: func(c *config.Config) string {
				if c.ScriptSource != "builtin" || c.Chat.ReplaySpeed != 1 || c.Chat.RejectBlank {
					return "defaults overridden"
				}
				return ""
			},
		},
		{
			name: "file implies file source",
			args: []string{"-f", "stream.yaml", "--speed", "4"},
			check: func(c *config.Config) string {
				if c.ScriptSource != "file" || c.ScriptFile != "stream.yaml" || c.Chat.ReplaySpeed != 4 {
					return "file flags not applied"
				}
				return ""
			},
		},
		{
			name: "name implies db source",
			args: []string{"--name", "evening", "--username", "sk", "--reject-blank"},
			check: func(c *config.Config) string {
				if c.ScriptSource != "db" || c.ScriptName != "evening" || c.Chat.ViewerUsername != "sk" || !c.Chat.RejectBlank {
					return "db flags not applied"
				}
				return ""
			},
		},
		{
			name: "explicit source wins",
			args: []string{"--file", "stream.json", "--source", "builtin"},
			check: func(c *config.Config) string {
				if c.ScriptSource != "builtin" {
					return "source flag ignored"
				}
				return ""
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			cfg := &config.Config{ScriptSource: "builtin", Chat: config.ChatConfig{ReplaySpeed: 1}}
			if err := applyFlags(cmd, cfg); err != nil {
				t.Fatalf("applyFlags: %v", err)
			}
			if msg := tt.check(cfg); msg != "" {
				t.Errorf("%s: %+v", msg, cfg)
			}
		})
	}
}

func TestRootCmdRejectsInvalidFlags(t *testing.T) {
	t.Setenv("SCRIPT_SOURCE", "")
	t.Setenv("DB_DSN", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"db without dsn", []string{"--name", "evening"}, "DB_DSN"},
		{"zero speed", []string{"--speed", "0"}, "REPLAY_SPEED"},
		{"unknown source", []string{"--source", "s3"}, "SCRIPT_SOURCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
