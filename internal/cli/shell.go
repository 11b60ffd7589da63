package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/conjecture/internal/config"
)

const shellPrompt = "conj> "

// lineReader is the part of liner.State the shell needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads commands from a non-terminal input.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}
func (r *scanReader) Close() error         { return nil }

func (d *dbSession) newLineReader(cfg *config.Config) (lineReader, func()) {
	if f, ok := d.o.in.(*os.File); !ok || f != os.Stdin || !liner.TerminalSupported() {
		return &scanReader{sc: bufio.NewScanner(d.o.in)}, func() {}
	}

	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(func(line string) []string {
		var out []string

		for _, c := range []string{"ls", "get ", "rm ", "help", "exit"} {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}

		return out
	})

	history := filepath.Join(cfg.EffectiveCwd, ".conjecture", "shell_history")
	if f, err := os.Open(history); err == nil {
		_, _ = st.ReadHistory(f)
		_ = f.Close()
	}

	return st, func() {
		if err := os.MkdirAll(filepath.Dir(history), 0o755); err != nil {
			return
		}

		if f, err := os.Create(history); err == nil {
			_, _ = st.WriteHistory(f)
			_ = f.Close()
		}
	}
}

func (d *dbSession) shell(cfg *config.Config) error {
	lr, saveHistory := d.newLineReader(cfg)
	defer func() { _ = lr.Close() }()
	defer saveHistory()

	for {
		line, err := lr.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lr.AppendHistory(line)

		args := strings.Fields(line)

		switch args[0] {
		case "exit", "quit":
			return nil
		case "help":
			d.o.Println("commands: ls, get <key>, rm <key>, help, exit")
		default:
			if err := d.dispatch(args); err != nil {
				d.o.Println("error:", err)
			}
		}
	}
}
