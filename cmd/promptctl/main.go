// Command promptctl is the PromptObjects CLI.
//
// Usage:
//
//	promptctl serve ./my-env
//	promptctl tui ./my-env
//	promptctl mcp ./my-env
//	promptctl new my-env --template greeter
//	promptctl export ./my-env -o my-env.zip
//	promptctl import my-env.zip --path ./restored
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/promptobjects/core/internal/palogger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP + WebSocket server for an environment."`
	Tui     TuiCmd     `cmd:"" help:"Open a terminal chat with an environment."`
	Mcp     McpCmd     `cmd:"" help:"Serve an environment over MCP stdio."`
	New     NewCmd     `cmd:"" help:"Create a new environment directory."`
	Export  ExportCmd  `cmd:"" help:"Export an environment as a bundle."`
	Import  ImportCmd  `cmd:"" help:"Import an environment bundle."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"PROMPT_OBJECTS_LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("promptctl version %s\n", version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("promptctl"),
		kong.Description("PromptObjects - a runtime for LLM-backed prompt objects"),
		kong.UsageOnError(),
	)

	level, err := palogger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	output := os.Stderr
	var closeLog func()
	if cli.LogFile != "" {
		f, closer, err := palogger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		output, closeLog = f, closer
		defer closeLog()
	}
	palogger.Init(level, output, cli.LogFormat)

	if err := ctx.Run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
