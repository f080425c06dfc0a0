// Package cli is a minimal subcommand framework for the postbus command.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUsage is returned when a command is invoked with bad arguments. The
// usage text has already been printed.
var ErrUsage = errors.New("usage error")

// Command is a command or subcommand.
type Command struct {
	// Usage is the one line usage message. The first word is the command name.
	Usage string
	// Short is a one line description shown in the parent's help.
	Short string
	// Long is shown in the command's own help.
	Long string
	// Args validates the positional arguments.
	Args PositionalArgs
	// Run executes the command. Commands without Run only hold subcommands.
	Run func(ctx context.Context, args []string)

	flags    *flag.FlagSet
	commands []*Command
	parent   *Command
}

// PositionalArgs checks the arguments left after flag parsing.
type PositionalArgs func(cmd *Command, args []string) error

// MinArgs requires at least n arguments.
func MinArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%s: requires at least %d arg(s), only received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

// MaxArgs allows at most n arguments.
func MaxArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) > n {
			return fmt.Errorf("%s: accepts at most %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

// ExactArgs requires exactly n arguments.
func ExactArgs(n int) PositionalArgs {
	return func(cmd *Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%s: accepts %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(strings.TrimSpace(c.Usage), " ")
	return name
}

// Flags returns the command's flag set, creating it on first use.
func (c *Command) Flags() *flag.FlagSet {
	if c.flags == nil {
		c.flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.flags.SetOutput(io.Discard)
	}
	return c.flags
}

// AddCommand adds subcommands.
func (c *Command) AddCommand(cmds ...*Command) {
	for _, sub := range cmds {
		sub.parent = c
		c.commands = append(c.commands, sub)
	}
}

func (c *Command) find(name string) *Command {
	for _, sub := range c.commands {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

func (c *Command) path() string {
	if c.parent == nil {
		return c.Name()
	}
	return c.parent.path() + " " + c.Name()
}

// PrintUsage writes the help for the command to w.
func (c *Command) PrintUsage(w io.Writer) {
	if c.Long != "" {
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(c.Long))
	} else if c.Short != "" {
		fmt.Fprintf(w, "%s\n\n", c.Short)
	}
	usage := c.Usage
	if c.parent != nil {
		usage = c.parent.path() + " " + usage
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)
	if len(c.commands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		for _, sub := range c.commands {
			fmt.Fprintf(w, "  %-12s %s\n", sub.Name(), sub.Short)
		}
	}
	hasFlags := false
	c.Flags().VisitAll(func(*flag.Flag) { hasFlags = true })
	if hasFlags {
		fmt.Fprintf(w, "\nFlags:\n")
		c.Flags().SetOutput(w)
		c.Flags().PrintDefaults()
		c.Flags().SetOutput(io.Discard)
	}
}

// Execute finds the subcommand named by args, parses its flags and runs it.
// Flags are parsed at every level, so "root -flag sub -subflag arg" works.
func Execute(ctx context.Context, root *Command, args []string) error {
	cmd := root
	for {
		if err := cmd.Flags().Parse(args); err != nil {
			cmd.PrintUsage(os.Stderr)
			if errors.Is(err, flag.ErrHelp) {
				return nil
			}
			return fmt.Errorf("%s: %w", cmd.path(), err)
		}
		args = cmd.Flags().Args()
		if len(args) == 0 {
			break
		}
		if args[0] == "help" && cmd.Run == nil {
			target := cmd
			if len(args) > 1 {
				if sub := cmd.find(args[1]); sub != nil {
					target = sub
				}
			}
			target.PrintUsage(os.Stdout)
			return nil
		}
		sub := cmd.find(args[0])
		if sub == nil {
			break
		}
		cmd = sub
		args = args[1:]
	}

	if cmd.Run == nil {
		cmd.PrintUsage(os.Stderr)
		if len(args) > 0 {
			return fmt.Errorf("unknown command %q for %q", args[0], cmd.path())
		}
		return nil
	}
	if cmd.Args != nil {
		if err := cmd.Args(cmd, args); err != nil {
			cmd.PrintUsage(os.Stderr)
			return err
		}
	}
	cmd.Run(ctx, args)
	return nil
}
