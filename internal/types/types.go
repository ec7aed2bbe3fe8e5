package types

import "time"

// Unknown is the name recorded for a face that matches no known identity.
const Unknown = "Unknown"

// TimestampLayout is the layout of AttendanceRecord timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Frame is a single captured frame, JPEG encoded.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Data       []byte
}

// FaceResult is one face found in a frame by the analyzer.
type FaceResult struct {
	Box   [4]int    `json:"box"`   // [x1, y1, x2, y2]
	Vec   []float32 `json:"vec"`   // normalized embedding
	Score float32   `json:"score"` // detection confidence
}

// Area returns the pixel area of the bounding box.
func (f FaceResult) Area() int {
	w := f.Box[2] - f.Box[0]
	h := f.Box[3] - f.Box[1]
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// ErrorResult captures the error object returned by the analyzer on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// KnownIdentity is a registered person loaded from the known faces directory.
type KnownIdentity struct {
	Name      string
	Embedding []float32
}

// AttendanceRecord is the last time a name was seen.
type AttendanceRecord struct {
	Name      string `json:"name" msgpack:"name"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
}
