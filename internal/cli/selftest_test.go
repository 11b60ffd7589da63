package cli_test

import (
	"os"
	"testing"

	"github.com/calvinalkan/conjecture/internal/cli"
)

func Test_Selftest_Passes_When_Engine_Is_Healthy(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--seed", "7", "selftest", "--parallel", "2")

	cli.AssertContains(t, stdout, "ok   selftest/boundary (failure,")
	cli.AssertContains(t, stdout, "ok   selftest/always-reject (health_check_aborted,")
	cli.AssertContains(t, stdout, "ok   selftest/distinct (failure,")
	cli.AssertNotContains(t, stdout, "FAIL")

	if _, err := os.Stat(c.ExamplesDir()); err == nil {
		t.Errorf("selftest without --use-db should not create %s", c.ExamplesDir())
	}
}

func Test_Selftest_Stores_Examples_When_Use_DB_Is_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--seed", "7", "selftest", "--use-db")

	stdout := c.MustRun("db", "get", "name:selftest/boundary")
	cli.AssertContains(t, stdout, "hex=000065")
}
