package conjecture_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/conjecture/pkg/conjecture"
)

func Test_ReproduceFailure_Replays_Blob_From_Report(t *testing.T) {
	t.Parallel()

	e := conjecture.NewEngine(testSettings())
	p := boundaryProperty("reproduce")

	res := explore(t, e, p)
	require.True(t, res.Failed())

	report, err := conjecture.ReproduceFailure(context.Background(), e, p, conjecture.Version, res.Failures[0].Blob)
	require.NoError(t, err)

	assert.Equal(t, int64(101), report.Value)
	assert.Equal(t, res.Failures[0].Key, report.Key)
	assert.ErrorIs(t, report, errTooBig{})
}

func Test_ReproduceFailure_Returns_Error_When_Blob_Does_Not_Fail(t *testing.T) {
	t.Parallel()

	e := conjecture.NewEngine(testSettings())
	p := boundaryProperty("reproduce-errors")

	tests := []struct {
		name    string
		version string
		blob    string
		want    error
	}{
		{name: "other version", version: "0.0.1", blob: conjecture.EncodeFailure([]byte{0, 0, 0x65}), want: conjecture.ErrInvalidArgument},
		{name: "malformed blob", version: conjecture.Version, blob: "!!!", want: conjecture.ErrInvalidArgument},
		{name: "passing buffer", version: conjecture.Version, blob: conjecture.EncodeFailure([]byte{0, 0, 5}), want: conjecture.ErrDidNotReproduce},
		{name: "short buffer", version: conjecture.Version, blob: conjecture.EncodeFailure([]byte{0}), want: conjecture.ErrDidNotReproduce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := conjecture.ReproduceFailure(context.Background(), e, p, tt.version, tt.blob)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
