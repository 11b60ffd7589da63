package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/conjecture/internal/config"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the running command; exploration stops between
// trials and reports what it found so far.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("conj", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	dbKind := globals.String("db", "", "Example database `kind` (none|memory|directory|bolt)")
	dbPath := globals.String("db-path", "", "Example database `path`")
	seed := globals.Int64("seed", 0, "Random seed (0 = random)")
	maxExamples := globals.Int("max-examples", 0, "Generation budget per property")
	verbose := globals.CountP("verbose", "v", "Log more (repeatable)")
	quiet := globals.BoolP("quiet", "q", false, "Only log errors")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	if err := globals.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	overrides := config.Overlay{}

	if *dbKind != "" || *dbPath != "" {
		overrides.Database = &config.Database{Kind: *dbKind, Path: *dbPath}
	}

	if globals.Changed("seed") {
		overrides.Seed = seed
	}

	if globals.Changed("max-examples") {
		overrides.MaxExamples = maxExamples
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Env:             env,
		Overrides:       overrides,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	verbosity := cfg.Verbosity.Shift(*verbose)
	if *quiet {
		verbosity = config.VerbosityQuiet
	}

	log := logrus.New()
	log.SetOutput(errOut)
	log.SetLevel(verbosity.Level())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	commands := []*Command{
		EncodeCmd(),
		DecodeCmd(),
		DBCmd(&cfg),
		SelftestCmd(&cfg, log),
		PrintConfigCmd(&cfg),
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == rest[0] {
			cmd = c
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-sigCh:
			log.Warn("interrupted, stopping after the current trial")
			cancel()
		case <-ctx.Done():
		}
	}()

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `conj - conjecture engine tool

Usage: conj [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	_, _ = fmt.Fprint(w, buf.String())

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}
