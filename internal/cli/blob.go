package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/calvinalkan/conjecture/pkg/conjecture"

	flag "github.com/spf13/pflag"
)

var errArgCount = errors.New("wrong number of arguments")

// EncodeCmd returns the encode command.
func EncodeCmd() *Command {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "encode <hex|->",
		Short: "Encode a buffer as a failure blob",
		Long:  "Encode a hex buffer (or hex read from stdin with -) as a reproduction blob.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execEncode(o, args)
		},
	}
}

func execEncode(o *IO, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: encode takes one buffer", errArgCount)
	}

	text := args[0]
	if text == "-" {
		data, err := io.ReadAll(o.in)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}

		text = string(data)
	}

	buf, err := hex.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("invalid hex buffer: %w", err)
	}

	o.Println(conjecture.EncodeFailure(buf))

	return nil
}

// DecodeCmd returns the decode command.
func DecodeCmd() *Command {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "decode <blob>",
		Short: "Decode a failure blob to hex",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: decode takes one blob", errArgCount)
			}

			buf, err := conjecture.DecodeFailure(args[0])
			if err != nil {
				return err
			}

			o.Println(hex.EncodeToString(buf))

			return nil
		},
	}
}
