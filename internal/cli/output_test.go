package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "test error")
	assert.Equal(t, "test error", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	cause := errors.New("underlying")
	wrapped := WrapExitError(ExitCommandError, "wrapper", cause)
	assert.Equal(t, "wrapper: underlying", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(
		errors.Join(errors.New("x"), NewExitError(ExitCommandError, "y"))))
}

func TestFormatterSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, f.Success(map[string]string{"path": "<a&b>"}))

	// HTML characters stay readable
	assert.Contains(t, buf.String(), "<a&b>")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)

	buf.Reset()
	f.Format = "text"
	require.NoError(t, f.Success("done"))
	assert.Equal(t, "done\n", buf.String())
}

func TestFormatterError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
	require.NoError(t, f.Error("E005", "not found", "details"))
	assert.Equal(t, "Error [E005]: not found\nDetails: details\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Error("E005", "not found", nil))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
}

func TestFormatterFail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	err := f.Fail(ExitFailure, "E_BLOCKED", "blocked", map[string]bool{"blocked": true})
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err), "the JSON envelope carries the error")

	var resp struct {
		Status string          `json:"status"`
		Data   map[string]bool `json:"data"`
		Error  CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.True(t, resp.Data["blocked"])
	assert.Equal(t, "E_BLOCKED", resp.Error.Code)

	// text mode leaves reporting to the caller
	buf.Reset()
	f.Format = "text"
	err = f.Fail(ExitCommandError, "E001", "bad", nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, IsReported(err))
	assert.Empty(t, buf.String())
}

func TestFormatterAbort(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: format, Writer: buf}
			err := f.Abort("E005", "not found", WrapExitError(ExitCommandError, "open", errors.New("missing")))

			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.True(t, IsReported(err))
			assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("not found")), "written exactly once")
		})
	}
}

func TestIsReported(t *testing.T) {
	assert.False(t, IsReported(nil))
	assert.False(t, IsReported(errors.New("plain")))
	assert.False(t, IsReported(NewExitError(ExitFailure, "x")))
	assert.True(t, IsReported(fmt.Errorf("wrapped: %w", &ExitError{Code: ExitFailure, Reported: true})))
}

func TestFormatterVerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	f.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())

	f.ErrWriter = nil
	assert.Same(t, out, f.GetErrWriter())
}
