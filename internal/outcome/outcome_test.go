package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, OK, KindOf(nil))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))

	err := fmt.Errorf("wrapped: %w", New(MissingSource, "list", "/src", nil))
	assert.Equal(t, MissingSource, KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := New(ExternalToolFailure, "snapshot", "/mnt/home", errors.New("exit 1"))
	assert.Equal(t, "snapshot /mnt/home: exit 1", err.Error())

	err = New(AlreadyReplicated, "replicate", "", nil)
	assert.Equal(t, "replicate: already-replicated", err.Error())
}

func TestExitCodesAreDistinct(t *testing.T) {
	seen := map[int]Kind{}
	for _, k := range []Kind{AlreadyReplicated, MissingSource, MissingDestination, ConfigError,
		ExternalToolFailure, VerificationMismatch, SpaceAnomaly, Internal} {
		code := k.ExitCode()
		assert.NotZero(t, code, k.String())
		prev, dup := seen[code]
		assert.False(t, dup, "%s and %s share exit code %d", k, prev, code)
		seen[code] = k
	}
	assert.NotContains(t, seen, ExitMixed)
}

func TestPolicyTolerated(t *testing.T) {
	strict := Policy{}
	assert.True(t, strict.Tolerated(OK))
	assert.False(t, strict.Tolerated(AlreadyReplicated))
	assert.False(t, strict.Tolerated(MissingDestination))
	assert.False(t, strict.Tolerated(MissingSource))

	lenient := Policy{AlreadyOK: true, PartialOK: true, MissingOK: true}
	assert.True(t, lenient.Tolerated(AlreadyReplicated))
	assert.True(t, lenient.Tolerated(MissingDestination))
	assert.True(t, lenient.Tolerated(MissingSource))
	assert.False(t, lenient.Tolerated(ExternalToolFailure))
	assert.False(t, lenient.Tolerated(SpaceAnomaly))
}

func TestReportSingleKind(t *testing.T) {
	r := NewReport(Policy{})
	r.Add("home", nil)
	r.Add("var", New(ExternalToolFailure, "send", "/var", errors.New("boom")))
	r.Add("srv", New(ExternalToolFailure, "receive", "/srv", nil))

	err := r.Err()
	require.Error(t, err)
	assert.Equal(t, ExitTool, ExitCode(err))
	assert.Len(t, r.Failed(), 2)
	assert.Equal(t, 2, r.Count(ExternalToolFailure))
	assert.Contains(t, err.Error(), "var: send /var: boom")
}

func TestReportMixedKinds(t *testing.T) {
	r := NewReport(Policy{})
	r.Add("home", New(MissingSource, "list", "/home", nil))
	r.Add("var", New(VerificationMismatch, "verify", "/var", nil))

	assert.Equal(t, ExitMixed, ExitCode(r.Err()))
}

func TestReportTolerated(t *testing.T) {
	r := NewReport(Policy{AlreadyOK: true})
	r.Add("home", New(AlreadyReplicated, "replicate", "/home", nil))
	r.Add("var", nil)

	assert.NoError(t, r.Err())
	assert.Len(t, r.Entries(), 2)
	assert.Equal(t, 1, r.Count(AlreadyReplicated))
}

func TestReportAlreadyReplicatedNotTolerated(t *testing.T) {
	r := NewReport(Policy{})
	r.Add("home", New(AlreadyReplicated, "replicate", "/home", nil))

	err := r.Err()
	require.Error(t, err)
	assert.Equal(t, ExitAlreadyReplicated, ExitCode(err))
	assert.Contains(t, err.Error(), "home: replicate /home: already-replicated")
}

type coded int

func (c coded) Error() string { return "coded" }
func (c coded) ExitCode() int { return int(c) }

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInternal, ExitCode(errors.New("x")))
	assert.Equal(t, ExitConfig, ExitCode(Configf("bad keep %d", -1)))
	assert.Equal(t, 42, ExitCode(fmt.Errorf("cli: %w", coded(42))))
}
