// ABOUTME: Interactive setup command writing a starter config file
// ABOUTME: Prompts for Matrix credentials and room handling options

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/flowkeeper/internal/config"
)

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := config.DefaultPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	ask := func(prompt, fallback string) string {
		green.Print("    ▶ ")
		fmt.Print(prompt)
		value, _ := reader.ReadString('\n')
		value = strings.TrimSpace(value)
		if value == "" {
			return fallback
		}
		return value
	}

	homeserver := ask("Matrix homeserver URL [https://matrix.org]: ", "https://matrix.org")
	username := ask("Matrix username: ", "")
	password := ask("Matrix password: ", "")
	recoveryKey := ask("Matrix recovery key (optional, for E2EE): ", "")
	prefix := ask("Command prefix (optional, e.g. '!flow'): ", "")
	timeout := ask("Conversation timeout [1h]: ", "1h")

	contents := renderConfig(homeserver, username, password, recoveryKey, prefix, timeout)

	// Reject anything the loader would refuse before touching the disk.
	if _, err := config.Parse([]byte(contents), "yaml"); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(contents), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Invite the bot to a room or start a direct message")
	fmt.Println("    2. Run: flowkeeper")
	fmt.Println()

	return nil
}

// renderConfig produces the YAML written by init. Values are quoted so
// passwords with YAML syntax characters survive.
func renderConfig(homeserver, username, password, recoveryKey, prefix, timeout string) string {
	var b strings.Builder
	b.WriteString("# flowkeeper configuration\n# Generated by flowkeeper init\n\n")

	fmt.Fprintf(&b, "matrix:\n  homeserver: %q\n  username: %q\n  password: %q\n", homeserver, username, password)
	if recoveryKey != "" {
		fmt.Fprintf(&b, "  recovery_key: %q\n", recoveryKey)
	}

	fmt.Fprintf(&b, `
flows:
  # Idle conversations time out after this long
  default_timeout: %q
  sweep_interval: "60s"
  gateway_timeout: "10s"
  send_timeout_notice: true

dedupe:
  enabled: true
  ttl: "10m"
  max_size: 10000

bridge:
  # Only respond in these rooms (empty = all joined rooms)
  allowed_rooms: []
  # Messages starting with this prefix count as mentions of the bot
  command_prefix: %q
  typing_indicator: true

metrics:
  enabled: false
  addr: "127.0.0.1:9464"
  path: "/metrics"

logging:
  level: "info"
  format: "text"
`, timeout, prefix)

	return b.String()
}
