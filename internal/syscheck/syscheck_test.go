package syscheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(name string) Check {
	return Check{Name: name, Run: func(context.Context) error { return nil }}
}

func fail(name string, optional bool) Check {
	return Check{Name: name, Optional: optional, Run: func(context.Context) error { return errors.New(name + " broke") }}
}

func TestCheckerRunsAllChecks(t *testing.T) {
	var ran []string
	track := func(c Check) Check {
		run := c.Run
		c.Run = func(ctx context.Context) error {
			ran = append(ran, c.Name)
			return run(ctx)
		}
		return c
	}

	c := &Checker{Checks: []Check{
		track(fail("first", false)),
		track(pass("second")),
		track(fail("third", false)),
		track(fail("optional", true)),
	}}

	err := c.Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnmet)
	assert.Contains(t, err.Error(), "first broke")
	assert.Contains(t, err.Error(), "third broke")
	assert.NotContains(t, err.Error(), "optional broke")
	assert.Equal(t, []string{"first", "second", "third", "optional"}, ran)
}

func TestCheckerPasses(t *testing.T) {
	c := &Checker{Checks: []Check{pass("a"), fail("b", true)}}
	assert.NoError(t, c.Check(context.Background()))
}

func TestCheckerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Checker{Checks: []Check{pass("a")}}
	assert.ErrorIs(t, c.Check(ctx), context.Canceled)
}

func TestOperatingSystem(t *testing.T) {
	for _, goos := range []string{"windows", "darwin", "linux"} {
		assert.NoError(t, OperatingSystem(goos).Run(context.Background()), goos)
	}
	assert.Error(t, OperatingSystem("plan9").Run(context.Background()))
}

func TestDiskSpace(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "not", "yet", ".minecraft")

	var queried string
	free := func(n uint64, err error) func(string) (uint64, error) {
		return func(p string) (uint64, error) {
			queried = p
			return n, err
		}
	}

	require.NoError(t, diskSpace(missing, 100, free(100, nil)).Run(context.Background()))
	assert.Equal(t, dir, queried, "nearest existing parent is measured")

	err := diskSpace(dir, 3<<30, free(1<<30, nil)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1.0 GiB free, 3.0 GiB required")

	assert.NoError(t, diskSpace(dir, 1, free(0, ErrUnsupported)).Run(context.Background()))
	assert.Error(t, diskSpace(dir, 1, free(0, errors.New("io"))).Run(context.Background()))
}

func TestJava(t *testing.T) {
	out := func(s string) func(context.Context, string, ...string) ([]byte, error) {
		return func(context.Context, string, ...string) ([]byte, error) {
			return []byte(s), nil
		}
	}

	assert.NoError(t, Java(out(`openjdk version "17.0.2"`), 17, false).Run(context.Background()))
	err := Java(out(`java version "1.8.0_381"`), 17, false).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "java 8 found")
	assert.True(t, Java(nil, 17, true).Optional)
}

func TestInternet(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	assert.NoError(t, Internet(ok.Client(), ok.URL).Run(context.Background()))
	assert.Error(t, Internet(down.Client(), down.URL).Run(context.Background()))
	assert.Error(t, Internet(nil, "http://127.0.0.1:1").Run(context.Background()))
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		2 << 30: "2.0 GiB",
		1536:    "1.5 KiB",
	}
	for n, want := range tests {
		assert.Equal(t, want, FormatBytes(n))
	}
}
