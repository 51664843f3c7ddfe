package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

// newChatCmd creates the `omniclaw chat` command: a local REPL over the
// console transport, with the full core behind it.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant from the terminal",
		Long: `Talk to the assistant locally. With a message argument, sends it and
prints the reply. Without arguments, opens an interactive session.

Examples:
  omniclaw chat "what's on my plate today?"
  omniclaw chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	tr := transport.NewConsole(os.Stdout)
	a, err := buildApp(cfg, cfgPath, tr, appOptions{disableDelays: true}, logger)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.pipeline.Run(ctx)

	const localUser = "local"

	if len(args) > 0 {
		if err := a.pipeline.RunAgent(ctx, transport.ConsoleChat, args[0]); err != nil {
			return fmt.Errorf("processing message: %w", err)
		}
		return nil
	}

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Interactive chat. Type 'exit' or Ctrl+D to quit.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		tr.Inject(transport.ConsoleChat, localUser, line)
	}
}
