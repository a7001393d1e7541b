package replay

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecorderRollWritesArtefact(t *testing.T) {
	dir := t.TempDir()
	clock := fixedClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	recorder, err := NewRecorder(dir, clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	recorder.RecordTick(1, []byte(`{"tick":1}`))
	recorder.RecordTick(2, []byte(`{"tick":2}`))

	stats := recorder.Snapshot()
	if stats.BufferedFrames != 2 || stats.BufferedBytes == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	path, err := recorder.Roll("demo run!")
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	//1.- Unsafe characters are stripped from the run name.
	if !strings.Contains(path, "demorun-") {
		t.Fatalf("unexpected artefact path %q", path)
	}

	//2.- The buffer is cleared and the dump counted.
	stats = recorder.Snapshot()
	if stats.BufferedFrames != 0 || stats.Dumps != 1 || stats.LastDumpURI != path {
		t.Fatalf("unexpected post-roll stats %+v", stats)
	}
}

func TestRecorderRollWithoutFrames(t *testing.T) {
	recorder, err := NewRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, err := recorder.Roll("empty"); err == nil {
		t.Fatalf("expected an error when no frames are buffered")
	}
}

func TestWriterBundleRoundTrip(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	writer, manifest, err := NewWriter(root, "three-body-demo", map[string]float64{"dt": 1.0 / 60.0}, clock)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if manifest.Scene != "three-body-demo" || manifest.EventsPath == "" || manifest.FramesPath == "" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}

	if err := writer.AppendEvent(5, "body_collision", []byte(`{"primary":"a","secondary":"b"}`)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := writer.AppendFrame(5, []byte(`{"tick":5}`)); err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	//1.- Advance the clock past the cadence so the second frame flushes both.
	now = now.Add(time.Second)
	if err := writer.AppendFrame(6, []byte(`{"tick":6}`)); err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	//2.- Re-open the bundle and verify both logs decode.
	bundle, err := Open(writer.Directory())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(bundle.Events) != 1 || bundle.Events[0].Type != "body_collision" || bundle.Events[0].Tick != 5 {
		t.Fatalf("unexpected events %+v", bundle.Events)
	}
	if len(bundle.Frames) != 2 || bundle.Frames[0].Tick != 5 || bundle.Frames[1].Tick != 6 {
		t.Fatalf("unexpected frames %+v", bundle.Frames)
	}
	var decoded struct {
		Tick uint64 `json:"tick"`
	}
	if err := json.Unmarshal(bundle.Frames[1].Payload, &decoded); err != nil || decoded.Tick != 6 {
		t.Fatalf("frame payload did not round trip: %v %+v", err, decoded)
	}
	if bundle.Manifest.Physics["dt"] == 0 {
		t.Fatalf("physics parameters missing from manifest: %+v", bundle.Manifest)
	}
}
