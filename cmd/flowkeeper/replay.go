// ABOUTME: Offline replay of recorded events through the orchestrator
// ABOUTME: Reads newline-delimited JSON and prints every outbound call and result

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fatih/color"

	"github.com/2389/flowkeeper/internal/config"
	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/handlers"
	"github.com/2389/flowkeeper/internal/inbound"
)

// replayBotID is the identity the console gateway reports.
const replayBotID = "UFLOWKEEPER"

// maxReplayLine bounds one recorded payload.
const maxReplayLine = 1 << 20

// runReplay feeds each line of the file named in args (stdin when absent)
// to the orchestrator. Interaction payloads are told apart from message
// events by inbound.IsInteraction.
func runReplay(args []string) error {
	var in io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer f.Close()
		in = f
	}

	cfg, err := replayConfig(config.DefaultPath())
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	orch := flow.New(gateway.NewConsole(os.Stdout, replayBotID), flowOptions(cfg, logger)...)
	handlers.Register(orch, logger)

	ctx := context.Background()
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	defer orch.Close()

	return replay(ctx, orch, in, os.Stdout)
}

// replayConfig loads the config file when there is one and falls back to
// the defaults otherwise. Matrix credentials are not needed.
func replayConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return config.Parse(nil, "yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// replay handles every payload in r and writes each result to w.
func replay(ctx context.Context, orch *flow.Orchestrator, r io.Reader, w io.Writer) error {
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		res, err := replayOne(ctx, orch, data)
		if err != nil {
			red.Fprintf(w, "    ✗ line %d: %v\n", line, err)
			continue
		}

		out, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		cyan.Fprintf(w, "    ▶ line %d: ", line)
		fmt.Fprintln(w, string(out))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading replay input: %w", err)
	}
	return nil
}

func replayOne(ctx context.Context, orch *flow.Orchestrator, data []byte) (flow.Result, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return flow.Result{}, fmt.Errorf("decoding payload: %w", err)
	}

	if inbound.IsInteraction(raw) {
		it, err := inbound.ParseInteraction(data)
		if err != nil {
			return flow.Result{}, err
		}
		return orch.HandleInteraction(ctx, it), nil
	}

	evt, err := inbound.ParseEvent(data)
	if err != nil {
		return flow.Result{}, err
	}
	return orch.HandleEvent(ctx, evt), nil
}
