package main

import (
	"context"
	"os"

	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/mcpserver"
)

// McpCmd serves an environment over MCP stdio. The environment path
// falls back to PROMPT_OBJECTS_DIR so editor configs can omit it.
type McpCmd struct {
	Env      string `arg:"" optional:"" help:"Environment directory (default: $PROMPT_OBJECTS_DIR)." type:"path"`
	MaxTurns int    `help:"Cap on LLM-call iterations per turn (0 = unbounded)." default:"0"`
}

func (c *McpCmd) Run() error {
	dir := c.Env
	if dir == "" {
		dir = os.Getenv("PROMPT_OBJECTS_DIR")
	}
	ctx := context.Background()
	env, err := environment.New(ctx, environment.Config{Dir: dir, MaxTurns: c.MaxTurns})
	if err != nil {
		return err
	}
	defer func() { _ = env.Close(context.Background()) }()

	return mcpserver.New(env, "dev").ServeStdio()
}
