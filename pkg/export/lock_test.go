package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireRefusedWhileHolderAlive(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	// The holder is this test process, which is certainly alive
	_, err = Acquire(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by running process")
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	// PID beyond the kernel's pid ceiling, so no such process exists
	stalePid := 1 << 30
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", stalePid)), 0644))

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireTakesOverMalformedLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a pid\n"), 0644))

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
