package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/pkg/errors"
)

const megabyte = 1024 * 1024

// StreamSource decodes a network stream with an ffmpeg subprocess that writes MJPEG to stdout.
type StreamSource struct {
	URL      string
	Settings Settings

	// command builds the decoder process. Nil runs ffmpeg.
	command func(ctx context.Context, args ...string) *exec.Cmd

	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	stdout  io.ReadCloser
	scanner *bufio.Scanner
}

// NewStreamSource returns a source for url.
func NewStreamSource(url string, s Settings) *StreamSource {
	return &StreamSource{URL: url, Settings: s}
}

// Args builds the ffmpeg arguments for the stream.
func (s *StreamSource) Args() []string {
	var args []string
	if strings.HasPrefix(s.URL, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	if s.Settings.BufferSize > 0 {
		// Keep the input queue short so frames stay fresh
		args = append(args, "-thread_queue_size", strconv.Itoa(s.Settings.BufferSize))
	}
	args = append(args, "-i", s.URL)

	if s.Settings.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(s.Settings.FPS))
	}
	if s.Settings.Width > 0 && s.Settings.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", s.Settings.Width, s.Settings.Height))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// Open starts ffmpeg bound to ctx, so cancelling ctx kills the process and unblocks reads.
func (s *StreamSource) Open(ctx context.Context) error {
	newCmd := s.command
	if newCmd == nil {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "ffmpeg not found")
		}
		newCmd = utils.NewFFmpegCmd
	}

	cmd := newCmd(ctx, s.Args()...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "Failed to create FFmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "Failed to start FFmpeg")
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	s.cmd = cmd
	s.stderr = stderr
	s.stdout = stdout
	s.scanner = scanner
	return nil
}

func (s *StreamSource) ReadFrame(ctx context.Context) (types.Frame, error) {
	if s.scanner == nil {
		return types.Frame{}, errors.Wrap(types.ErrDeviceUnavailable, "stream not open")
	}

	if !s.scanner.Scan() {
		err := s.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		// stderr is only safe to read once Wait has joined exec's copy goroutine
		stderr := s.stderr
		s.Close()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w (ffmpeg: %s)", err, msg)
		}
		return types.Frame{}, errors.Wrap(fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err), "stream ended")
	}

	// Scanner reuses its buffer between calls
	data := make([]byte, len(s.scanner.Bytes()))
	copy(data, s.scanner.Bytes())
	return types.Frame{Data: data}, nil
}

func (s *StreamSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	s.scanner = nil

	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	s.stdout.Close()
	// Wait reaps the process; the error is the kill signal we just sent.
	cmd.Wait()
	return nil
}
