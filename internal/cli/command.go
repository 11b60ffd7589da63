package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "conj" in help.
	// Examples: "decode <blob>", "db ls", "selftest [flags]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Subcommands, when set, restrict the first argument and are listed in
	// command help.
	Subcommands []Subcommand

	// Examples are shown after "conj" at the end of command help.
	Examples []string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Subcommand is one verb of a command that groups several operations.
type Subcommand struct {
	// Usage is the verb and its arguments, e.g. "get <key>".
	Usage string
	Short string
}

func (s Subcommand) name() string {
	name, _, _ := strings.Cut(s.Usage, " ")
	return name
}

// checkSubcommand rejects a first argument that names no subcommand.
func (c *Command) checkSubcommand(args []string) error {
	if len(c.Subcommands) == 0 || len(args) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Subcommands))
	for _, sub := range c.Subcommands {
		if sub.name() == args[0] {
			return nil
		}

		names = append(names, sub.name())
	}

	return fmt.Errorf("unknown %s subcommand: %s (want %s)", c.Name(), args[0], strings.Join(names, ", "))
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-26s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "conj <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: conj", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if len(c.Subcommands) > 0 {
		o.Println()
		o.Println("Subcommands:")

		for _, sub := range c.Subcommands {
			o.Printf("  %-12s %s\n", sub.Usage, sub.Short)
		}
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}

	if len(c.Examples) > 0 {
		o.Println()
		o.Println("Examples:")

		for _, ex := range c.Examples {
			o.Println("  conj", ex)
		}
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.checkSubcommand(c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return o.Finish()
}
