package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/conjecture/internal/config"
	"github.com/calvinalkan/conjecture/pkg/conjecture"
	"github.com/calvinalkan/conjecture/pkg/conjecture/exampledb"

	flag "github.com/spf13/pflag"
)

var (
	errDatabaseDisabled = errors.New("example database is disabled (database kind is none)")
	errKeyNotFound      = errors.New("key not found")
	errUnknownSubcmd    = errors.New("unknown db subcommand")
)

const namePrefix = "name:"

// DBCmd returns the db command.
func DBCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "db <ls|get|rm|shell> [key]",
		Short: "Inspect the example database",
		Long: `Inspect the example database.

Keys are hex encoded, or "name:<property name>" to derive the key of a property.`,
		Subcommands: []Subcommand{
			{Usage: "ls", Short: "List stored keys and example sizes"},
			{Usage: "get <key>", Short: "Print the stored example as hex and as a reproduction blob"},
			{Usage: "rm <key>", Short: "Remove the stored example"},
			{Usage: "shell", Short: "Interactive shell with the commands above"},
		},
		Examples: []string{
			"db ls",
			"db get name:my-property",
			"--db bolt --db-path examples.db db rm name:my-property",
		},
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDB(o, cfg, args)
		},
	}
}

func execDB(o *IO, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing subcommand", errArgCount)
	}

	db, err := cfg.OpenDatabase()
	if err != nil {
		return err
	}

	if db == nil {
		return errDatabaseDisabled
	}

	defer func() {
		if err := db.Close(); err != nil {
			o.Warn("closing database failed", err.Error())
		}
	}()

	d := &dbSession{db: db, o: o}

	if args[0] == "shell" {
		return d.shell(cfg)
	}

	return d.dispatch(args)
}

type dbSession struct {
	db exampledb.DB
	o  *IO
}

func (d *dbSession) dispatch(args []string) error {
	switch args[0] {
	case "ls":
		return d.ls()
	case "get", "rm":
		if len(args) != 2 {
			return fmt.Errorf("%w: %s takes one key", errArgCount, args[0])
		}

		key, err := parseKey(args[1])
		if err != nil {
			return err
		}

		if args[0] == "get" {
			return d.get(key)
		}

		return d.rm(key)
	default:
		return fmt.Errorf("%w: %s", errUnknownSubcmd, args[0])
	}
}

func parseKey(s string) ([]byte, error) {
	if name, ok := strings.CutPrefix(s, namePrefix); ok {
		return conjecture.PropertyKey(name), nil
	}

	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key %q: %w", s, err)
	}

	return key, nil
}

func (d *dbSession) ls() error {
	keys, err := d.db.Keys()
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		d.o.Println("(empty)")
		return nil
	}

	for _, k := range keys {
		v, found, err := d.db.Lookup(k)
		if err != nil {
			return err
		}

		if !found {
			continue
		}

		d.o.Printf("%s  %d bytes\n", hex.EncodeToString(k), len(v))
	}

	return nil
}

func (d *dbSession) get(key []byte) error {
	v, found, err := d.db.Lookup(key)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %x", errKeyNotFound, key)
	}

	d.o.Println("hex=" + hex.EncodeToString(v))
	d.o.Println("blob=" + conjecture.EncodeFailure(v))

	return nil
}

func (d *dbSession) rm(key []byte) error {
	v, found, err := d.db.Lookup(key)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %x", errKeyNotFound, key)
	}

	if err := d.db.Delete(key, v); err != nil {
		return err
	}

	d.o.Printf("removed %x\n", key)

	return nil
}
