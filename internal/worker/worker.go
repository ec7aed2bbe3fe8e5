package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils" // Using the SafeCommand wrapper
)

// EmbeddingDim is the length of the vectors produced by the insightface recognition models.
const EmbeddingDim = 512

// faceRecordSize is the wire size of one face: box, vector and score.
const faceRecordSize = 4*4 + EmbeddingDim*4 + 4

// Config selects the Python interpreter, script and model.
type Config struct {
	Python    string
	Script    string
	Model     string
	DetSize   int
	ModelsDir string
}

// DefaultConfig runs python/analyzer.py with the buffalo_l model pack.
func DefaultConfig() Config {
	return Config{
		Python:  "python3",
		Script:  "python/analyzer.py",
		Model:   "buffalo_l",
		DetSize: 640,
	}
}

// Error is a failure reported by the Python side for a single image.
// It classifies as a decode error so the frame is skipped.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "python worker error: " + e.Msg }

func (e *Error) Is(target error) bool { return target == types.ErrDecode }

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

func NewPythonWorker(id int, cfg Config) (*PythonWorker, error) {
	// 1. Initialize the SafeCommand
	args := []string{"-u", cfg.Script, "--model", cfg.Model, "--det-size", strconv.Itoa(cfg.DetSize)}
	if cfg.ModelsDir != "" {
		args = append(args, "--root", cfg.ModelsDir)
	}
	py := utils.NewSafeCommand(cfg.Python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends one JPEG to Python and decodes the detected faces.
//
// Response: [Status:0][NumFaces:u32] then per face [Box:4*i32][Vec:512*f32][Score:f32]
// Error:    [Status:1][MsgLen:u32][Msg]
func (w *PythonWorker) ProcessFrame(frame []byte) ([]types.FaceResult, error) {
	resp, err := w.Communicate(frame)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp []byte) ([]types.FaceResult, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty response from python worker")
	}

	buf := bytes.NewReader(resp[1:])
	if resp[0] != 0 {
		var msgLen uint32
		if err := binary.Read(buf, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(buf, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, &Error{Msg: string(msg)}
	}

	var numFaces uint32
	if err := binary.Read(buf, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if int64(numFaces) > int64(buf.Len()/faceRecordSize) {
		return nil, fmt.Errorf("malformed response: %d faces announced, room for %d", numFaces, buf.Len()/faceRecordSize)
	}

	faces := make([]types.FaceResult, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		var vec [EmbeddingDim]float32
		var score float32
		if err := binary.Read(buf, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d box: %w", i, err)
		}
		if err := binary.Read(buf, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("face %d vector: %w", i, err)
		}
		if err := binary.Read(buf, binary.BigEndian, &score); err != nil {
			return nil, fmt.Errorf("face %d score: %w", i, err)
		}

		faces = append(faces, types.FaceResult{
			Box:   [4]int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec:   matcher.Normalize(vec[:]),
			Score: score,
		})
	}
	return faces, nil
}

// Kill terminates the process without waiting, unblocking any pending read.
func (w *PythonWorker) Kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
