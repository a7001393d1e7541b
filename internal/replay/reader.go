package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// EventRecord is one rehydrated line from the compressed event log.
type EventRecord struct {
	Tick       uint64          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// FrameRecord is one rehydrated snapshot from the compressed frame log.
type FrameRecord struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Bundle holds a fully rehydrated replay directory.
type Bundle struct {
	Manifest Manifest
	Events   []EventRecord
	Frames   []FrameRecord
}

// Open loads a replay bundle written by Writer from its directory.
func Open(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay directory must be provided")
	}

	//1.- The manifest names the artefacts, so parse it first.
	manifestData, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	events, err := readEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, err
	}
	frames, err := readFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}
	return &Bundle{Manifest: manifest, Events: events, Frames: frames}, nil
}

func readEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []EventRecord
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		events = append(events, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func readFrames(path string) ([]FrameRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var frames []FrameRecord
	header := make([]byte, 8+8+4)
	for {
		//1.- Each frame is a fixed header followed by a length-prefixed payload.
		if _, err := io.ReadFull(decoder, header); err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return nil, err
		}
		tick := binary.LittleEndian.Uint64(header[0:8])
		captured := time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16]))).UTC()
		size := binary.LittleEndian.Uint32(header[16:20])
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, err
		}
		frames = append(frames, FrameRecord{Tick: tick, CapturedAt: captured, Payload: payload})
	}
}
