package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/connector"
	"github.com/promptobjects/core/internal/environment"
)

// TuiCmd opens a plain line-oriented chat against one prompt object.
// The full-screen render layer lives in a separate front-end; this
// command is the minimal terminal surface the core ships.
type TuiCmd struct {
	Env      string `arg:"" help:"Environment directory." type:"path"`
	PO       string `help:"Prompt object to talk to (default: first registered)."`
	MaxTurns int    `help:"Cap on LLM-call iterations per turn (0 = unbounded)." default:"0"`
}

func (c *TuiCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := environment.New(ctx, environment.Config{Dir: c.Env, MaxTurns: c.MaxTurns})
	if err != nil {
		return err
	}
	defer func() { _ = env.Close(context.Background()) }()

	poName := c.PO
	if poName == "" {
		info := env.Info()
		if len(info.PromptObjects) == 0 {
			return fmt.Errorf("environment has no prompt objects")
		}
		poName = info.PromptObjects[0]
	}

	fmt.Printf("talking to %s — empty line or ctrl-d quits\n", poName)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		res, err := env.Send(ctx, poName, connector.SourceTUI, capability.NewTextMessage(line))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(res.Content)
	}
	return scanner.Err()
}
