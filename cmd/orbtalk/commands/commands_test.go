package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MrWong99/orbtalk/internal/config"
)

// resetFlags restores every flag of cmd and its children to its default.
// Flag variables are package globals and cobra keeps them between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCmd executes the root command in-process with args.
func runCmd(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err = rootCmd.Execute()
	return out.String(), err
}

func writeTestYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbtalk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	stdout, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, "orbtalk "+Version) {
		t.Fatalf("expected 'orbtalk %s', got: %s", Version, stdout)
	}
}

func TestChatMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := runCmd(t, "chat", "-c", missing)
	if err == nil {
		t.Fatal("expected error when the config file is missing")
	}
	if !strings.Contains(err.Error(), "--origin") {
		t.Fatalf("expected a hint about --origin, got: %v", err)
	}
}

func TestChatOriginAndURLConflict(t *testing.T) {
	_, err := runCmd(t, "chat", "--origin", "https://a.example", "--url", "wss://b.example/api/chat")
	if err == nil {
		t.Fatal("expected error for --origin with --url")
	}
}

func TestChatRejectsBadURL(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := runCmd(t, "chat", "-c", missing, "--url", "http://b.example/api/chat")
	if err == nil || !strings.Contains(err.Error(), "ws or wss") {
		t.Fatalf("expected scheme error, got: %v", err)
	}
}

func TestChatInvalidConfigFile(t *testing.T) {
	path := writeTestYAML(t, "endpoint:\n  origin: https://a.example\naudio:\n  codec: mp3\n")
	_, err := runCmd(t, "chat", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "audio.codec") {
		t.Fatalf("expected codec error, got: %v", err)
	}
}

func TestLoadChatConfig(t *testing.T) {
	tests := []struct {
		name      string
		file      string // empty: no file
		args      []string
		wantFound bool
		wantOrig  string
		wantURL   string
		wantMeter bool
		wantLevel config.LogLevel
	}{
		{
			name:      "file only",
			file:      "endpoint:\n  origin: https://file.example\n",
			wantFound: true,
			wantOrig:  "https://file.example",
			wantMeter: true,
			wantLevel: config.LogInfo,
		},
		{
			name:      "url flag replaces file origin",
			file:      "endpoint:\n  origin: https://file.example\nui:\n  meter: false\n",
			args:      []string{"--url", "ws://127.0.0.1:8000/api/chat"},
			wantFound: true,
			wantURL:   "ws://127.0.0.1:8000/api/chat",
			wantMeter: false,
			wantLevel: config.LogInfo,
		},
		{
			name:      "no file with origin flag",
			args:      []string{"--origin", "http://localhost:8000", "--no-meter"},
			wantOrig:  "http://localhost:8000",
			wantMeter: false,
			wantLevel: config.LogInfo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "chat"}
			addChatFlags(cmd)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			configPath = filepath.Join(t.TempDir(), "absent.yaml")
			if tt.file != "" {
				configPath = writeTestYAML(t, tt.file)
			}
			verbose = false

			cfg, found, err := loadChatConfig(cmd)
			if err != nil {
				t.Fatalf("loadChatConfig: %v", err)
			}
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if cfg.Endpoint.Origin != tt.wantOrig || cfg.Endpoint.URL != tt.wantURL {
				t.Errorf("endpoint = %+v, want origin %q url %q", cfg.Endpoint, tt.wantOrig, tt.wantURL)
			}
			if got := cfg.UI.MeterEnabled(); got != tt.wantMeter {
				t.Errorf("meter = %v, want %v", got, tt.wantMeter)
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Errorf("log level = %q, want %q", cfg.LogLevel, tt.wantLevel)
			}
		})
	}
}
