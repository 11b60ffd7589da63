package cli

import (
	"context"

	"github.com/calvinalkan/conjecture/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	formatted, err := cfg.Format()
	if err != nil {
		return err
	}

	io.Printf("%s", formatted)
	io.Println("")
	io.Println("# effective_cwd=" + cfg.EffectiveCwd)

	if cfg.Profile != "" {
		io.Println("# profile=" + cfg.Profile)
	}

	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("# (defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("# global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("# project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
