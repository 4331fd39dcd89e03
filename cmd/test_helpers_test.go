package cmd

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureOutput runs f with os.Stdout and os.Stderr redirected to pipes
// and returns what was written.
func captureOutput(f func()) (stdout, stderr string) {
	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	var bufOut, bufErr bytes.Buffer
	doneOut := make(chan struct{})
	doneErr := make(chan struct{})
	go func() { io.Copy(&bufOut, rOut); close(doneOut) }()
	go func() { io.Copy(&bufErr, rErr); close(doneErr) }()

	f()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	<-doneOut
	<-doneErr
	rOut.Close()
	rErr.Close()

	return bufOut.String(), bufErr.String()
}

func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

func assertContainsAll(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, exp := range expected {
		assertContains(t, output, exp)
	}
}

// assertErrorFormat checks for "wanpull: cmd[action]:".
func assertErrorFormat(t *testing.T, output, cmd, action string) {
	t.Helper()
	assertContains(t, output, cmd+"["+action+"]:")
}
