package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/opus/api/proto"
	"github.com/heysubinoy/opus/internal/command"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	prompt         = "opus > "
	commandTimeout = 5 * time.Second
)

// shell executes REPL lines against a server for one session.
type shell struct {
	client  proto.OpusClient
	token   string
	out     io.Writer
	timeout time.Duration
	logger  hclog.Logger
}

func repl(ctx context.Context, client proto.OpusClient, token string, logger hclog.Logger) error {
	cfg := &readline.Config{
		Prompt:          prompt,
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.HistoryFile = filepath.Join(home, ".opus_history")
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	sh := &shell{client: client, token: token, out: rl.Stdout(), timeout: commandTimeout, logger: logger}
	fmt.Fprintln(sh.out, `Type "help" for commands, "quit" to exit`)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := sh.runLine(ctx, line); quit {
			fmt.Fprintln(sh.out, "Goodbye!")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runLine handles one line of input and reports whether the user asked to quit.
func (s *shell) runLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch strings.ToLower(line) {
	case "quit", "exit":
		return true
	case "help":
		printHelp(s.out)
		return false
	}

	args, err := command.Split(line)
	if err != nil {
		fmt.Fprintf(s.out, "(error) %s\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, proto.AuthorizationHeader, "Bearer "+s.token)

	start := time.Now()
	out, err := s.client.Execute(ctx, proto.Command(args))
	s.logger.Debug("executed", "command", args[0], "duration", time.Since(start))
	if err != nil {
		fmt.Fprintf(s.out, "(error) %s\n", status.Convert(err).Message())
		return false
	}

	reply, err := command.FromValue(out)
	if err != nil {
		fmt.Fprintf(s.out, "(error) %s\n", err)
		return false
	}
	fmt.Fprintln(s.out, command.Format(reply))
	return false
}

func printHelp(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range command.Commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", c.Usage, c.Summary)
	}
	fmt.Fprintf(tw, "  %s\t%s\n", "HELP", "Show this help")
	fmt.Fprintf(tw, "  %s\t%s\n", "QUIT | EXIT", "Leave the shell")
	_ = tw.Flush()
}

func newCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range command.Commands() {
		items = append(items, readline.PcItem(c.Name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("quit"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}
