package main

import (
	"testing"

	"github.com/korjavin/commitquizbot/config"
)

func TestApplyFlagsOnlyOverridesChanged(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Parse([]string{"--webhook", "--port", "9090"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Server: config.ServerConfig{Listen: "127.0.0.1", Port: 8000, WebhookPath: "/hook"}}
	var f flags
	f.webhook, _ = cmd.Flags().GetBool("webhook")
	f.port, _ = cmd.Flags().GetInt("port")
	f.path, _ = cmd.Flags().GetString("path")
	f.listen, _ = cmd.Flags().GetString("listen")
	applyFlags(cmd, f, cfg)

	if !cfg.Server.Webhook || cfg.Server.Port != 9090 {
		t.Fatalf("changed flags not applied: %+v", cfg.Server)
	}
	if cfg.Server.Listen != "127.0.0.1" || cfg.Server.WebhookPath != "/hook" {
		t.Fatalf("unchanged flags overrode config: %+v", cfg.Server)
	}
}
