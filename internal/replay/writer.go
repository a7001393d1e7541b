package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

const frameInterval = 200 * time.Millisecond

// Manifest describes the bundle layout so tooling can locate the artefacts.
type Manifest struct {
	Version         int                `json:"version"`
	CreatedAt       string             `json:"created_at"`
	Scene           string             `json:"scene"`
	Physics         map[string]float64 `json:"physics,omitempty"`
	FrameIntervalMs int                `json:"frame_interval_ms"`
	EventsPath      string             `json:"events_path"`
	FramesPath      string             `json:"frames_path"`
}

// frameBlob stages a snapshot until the flush cadence is reached.
type frameBlob struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Writer streams a run to disk: physics events into a snappy JSONL log and
// world snapshots into a zstd length-prefixed frame log.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
}

// NewWriter prepares the bundle directory and opens the compressed sinks.
// The physics map records the effective engine tunables for reproducibility.
func NewWriter(root, sceneName string, physicsParams map[string]float64, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := runNameCleaner.ReplaceAllString(sceneName, "")
	if cleaned == "" {
		cleaned = "run"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "events.jsonl.sz")
	framesPath := filepath.Join(path, "frames.bin.zst")
	manifestPath := filepath.Join(path, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(framesPath)
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		Scene:           sceneName,
		Physics:         physicsParams,
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		FramesPath:      "frames.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}
	return writer, manifest, nil
}

// Directory exposes the directory backing the bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent writes one JSON event line to the compressed event log.
func (w *Writer) AppendEvent(tick uint64, eventType string, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()

	record := struct {
		Tick       uint64          `json:"tick"`
		CapturedAt string          `json:"captured_at"`
		Type       string          `json:"type"`
		Payload    json.RawMessage `json:"payload"`
	}{
		Tick:       tick,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    json.RawMessage(payload),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := w.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame buffers a snapshot until the flush cadence is reached.
func (w *Writer) AppendFrame(tick uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Stage the frame so cadence enforcement can persist batches together.
	w.pending = append(w.pending, frameBlob{Tick: tick, CapturedAt: captured, Payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= frameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush forces pending frames to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close flushes all buffers and releases the file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Attempt every flush/close and surface the first failure.
	var firstErr error
	if err := w.flushLocked(); err != nil {
		firstErr = err
	}
	if err := w.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	//1.- Length-prefixed frames let readers step the log without decoding payloads.
	for _, frame := range w.pending {
		header := make([]byte, 8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
