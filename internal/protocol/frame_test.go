package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "PLAY", "Alice"))
	assert.Equal(t, "PLAY|6|Alice|\n", buf.String())

	r := NewReader(&buf)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "PLAY", f.Cmd)
	assert.Equal(t, []string{"Alice"}, f.Fields)
}

func TestWriteFrame_ZeroFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "RSGN"))
	assert.Equal(t, "RSGN|0|\n", buf.String())

	r := NewReader(&buf)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "RSGN", f.Cmd)
	assert.Empty(t, f.Fields)
}

func TestParseLine_EmptyLine(t *testing.T) {
	_, err := ParseLine([]byte(""))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, EmptyLine, ferr.Kind)
}

func TestParseLine_LeadingPipe(t *testing.T) {
	_, err := ParseLine([]byte("|PLAY|5|Alice|"))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, LeadingPipe, ferr.Kind)
}

func TestParseLine_MissingTrailingPipe(t *testing.T) {
	_, err := ParseLine([]byte("PLAY|5|Alice"))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, MissingTrailingPipe, ferr.Kind)
}

func TestParseLine_FewerThanTwoFields(t *testing.T) {
	_, err := ParseLine([]byte("PLAY|"))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, FewerThanTwoFields, ferr.Kind)
}

func TestParseLine_NonNumericLength(t *testing.T) {
	_, err := ParseLine([]byte("PLAY|five|Alice|"))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, NonNumericLength, ferr.Kind)
}

func TestParseLine_LengthMismatch(t *testing.T) {
	_, err := ParseLine([]byte("PLAY|99|Alice|"))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, LengthMismatch, ferr.Kind)
}

func TestParseLine_AcceptsServerOnlyCommandGrammar(t *testing.T) {
	// ParseLine only validates grammar; WAIT is server-to-client only, so
	// it parses fine here even though ValidateClientFrame would reject it.
	f, err := ParseLine([]byte("WAIT|0|"))
	require.NoError(t, err)
	assert.Equal(t, "WAIT", f.Cmd)
}

func TestValidateClientFrame_UnknownCommand(t *testing.T) {
	err := ValidateClientFrame(Frame{Cmd: "WAIT"})
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, UnknownCommand, ferr.Kind)
}

func TestValidateClientFrame_WrongArity(t *testing.T) {
	err := ValidateClientFrame(Frame{Cmd: "RSGN", Fields: []string{"X"}})
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, WrongArity, ferr.Kind)
}

func TestReadFrame_UnknownCommandFatal(t *testing.T) {
	r := NewReader(strings.NewReader("WAIT|0|\n"))
	_, err := r.ReadFrame()
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, UnknownCommand, ferr.Kind)
}

func TestReadFrame_WrongArityFatal(t *testing.T) {
	r := NewReader(strings.NewReader("RSGN|2|X|\n"))
	_, err := r.ReadFrame()
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, WrongArity, ferr.Kind)
}

func TestParseLine_MoveFields(t *testing.T) {
	f, err := ParseLine([]byte("MOVE|6|X|1,1|"))
	require.NoError(t, err)
	assert.Equal(t, "MOVE", f.Cmd)
	assert.Equal(t, []string{"X", "1,1"}, f.Fields)
}

// splitReader hands back its two halves on successive Read calls, exercising
// the codec's allowance for exactly one extra read to satisfy a declared
// length once the header is already known.
type splitReader struct {
	parts [][]byte
	i     int
}

func (s *splitReader) Read(p []byte) (int, error) {
	if s.i >= len(s.parts) {
		return 0, io.EOF
	}
	n := copy(p, s.parts[s.i])
	s.i++
	return n, nil
}

func TestReadFrame_CompletesOnOneExtraRead(t *testing.T) {
	src := &splitReader{parts: [][]byte{[]byte("PLAY|6|Al"), []byte("ice|\n")}}
	r := NewReader(src)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "PLAY", f.Cmd)
	assert.Equal(t, []string{"Alice"}, f.Fields)
}

func TestReadFrame_TwoFramesBackToBack(t *testing.T) {
	src := strings.NewReader("RSGN|0|\nPLAY|4|Bob|\n")
	r := NewReader(src)

	f1, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "RSGN", f1.Cmd)

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "PLAY", f2.Cmd)
	assert.Equal(t, []string{"Bob"}, f2.Fields)
}

func TestReadFrame_EOFOnCleanClose(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

// shortReadThenHang returns fewer bytes than the declared length on its
// first Read and then EOFs, simulating a peer that disconnects mid-frame.
type shortReadThenHang struct {
	data []byte
	done bool
}

func (s *shortReadThenHang) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	s.done = true
	return copy(p, s.data), nil
}

func TestReadFrame_LengthMismatchAfterOneExtraRead(t *testing.T) {
	// Declares 20 bytes of payload but only 2 ("Al") ever arrive before EOF.
	r := NewReader(&shortReadThenHang{data: []byte("PLAY|20|Al")})
	_, err := r.ReadFrame()
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr), "expected FrameError, got %v", err)
	assert.Equal(t, LengthMismatch, ferr.Kind)
}
