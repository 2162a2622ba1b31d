package enrollment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"classroom-monitor/internal/classroom"
	"classroom-monitor/internal/platform/logger"
)

// sequenceDetector hands out one queued result per call; an empty queue means
// no face.
type sequenceDetector struct {
	mu    sync.Mutex
	queue []classroom.Embedding
}

func (d *sequenceDetector) DetectFaces(ctx context.Context, img image.Image) ([]classroom.DetectedFace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, nil
	}
	emb := d.queue[0]
	d.queue = d.queue[1:]
	if emb == nil {
		return nil, nil
	}
	return []classroom.DetectedFace{{Box: classroom.Box{Right: 10, Bottom: 10}, Embedding: emb}}, nil
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(3, 3, color.Black)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T, det classroom.FaceDetector) (*Store, *classroom.EventLog) {
	t.Helper()
	dir := t.TempDir()
	events, err := classroom.NewEventLog(filepath.Join(dir, "reports"), filepath.Join(dir, "student_log.csv"))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	return NewStore(filepath.Join(dir, "face_data"), det, events, logger.Discard()), events
}

func TestStore_Load_missing_dir(t *testing.T) {
	s, _ := newTestStore(t, &sequenceDetector{})
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty gallery, got %v", got)
	}
}

func TestStore_Enroll_averages_and_loads(t *testing.T) {
	det := &sequenceDetector{queue: []classroom.Embedding{{1, 0}, nil, {3, 2}}}
	s, events := newTestStore(t, det)
	img := jpegBytes(t)

	res, err := s.Enroll(context.Background(), Request{RegID: "21BCE1", Name: "Ada L!", Images: [][]byte{img, img, img}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.Faces != 2 || res.Images != 3 || res.FolderName != "21BCE1_Ada L" {
		t.Errorf("unexpected result %+v", res)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "21BCE1" {
		t.Fatalf("expected one identity for 21BCE1, got %v", got)
	}
	if math.Abs(got[0].Embedding[0]-2) > 1e-9 || math.Abs(got[0].Embedding[1]-1) > 1e-9 {
		t.Errorf("expected mean [2 1], got %v", got[0].Embedding)
	}

	data, err := os.ReadFile(events.SessionLogPath())
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !bytes.Contains(data, []byte("21BCE1,Ada L,REGISTERED")) {
		t.Errorf("registration row missing: %q", data)
	}
}

func TestStore_Enroll_no_face(t *testing.T) {
	s, _ := newTestStore(t, &sequenceDetector{})

	_, err := s.Enroll(context.Background(), Request{RegID: "X1", Name: "Nobody", Images: [][]byte{jpegBytes(t)}})
	if !errors.Is(err, ErrNoFaceFound) {
		t.Fatalf("expected ErrNoFaceFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "X1_Nobody")); !os.IsNotExist(err) {
		t.Errorf("student folder should be removed, stat err=%v", err)
	}
}

func TestStore_Enroll_invalid(t *testing.T) {
	s, _ := newTestStore(t, &sequenceDetector{})
	img := jpegBytes(t)
	cases := []struct {
		name string
		req  Request
	}{
		{"empty_reg_id", Request{Name: "A", Images: [][]byte{img}}},
		{"reg_id_with_underscore", Request{RegID: "a_b", Name: "A", Images: [][]byte{img}}},
		{"reg_id_with_slash", Request{RegID: "../x", Name: "A", Images: [][]byte{img}}},
		{"empty_name", Request{RegID: "R1", Name: "!!", Images: [][]byte{img}}},
		{"no_images", Request{RegID: "R1", Name: "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Enroll(context.Background(), tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestStore_Load_encodes_photos_without_npy(t *testing.T) {
	det := &sequenceDetector{queue: []classroom.Embedding{{0.5, 0.5}, {0.7, 0.1}}}
	s, _ := newTestStore(t, det)

	folder := filepath.Join(s.Dir(), "R7_Grace")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"a.jpg", "b.jpg"} {
		if err := os.WriteFile(filepath.Join(folder, n), jpegBytes(t), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "R7" || got[1].ID != "R7" {
		t.Errorf("expected two R7 identities, got %v", got)
	}
}

func TestStore_DeleteAll(t *testing.T) {
	det := &sequenceDetector{queue: []classroom.Embedding{{1, 1}}}
	s, _ := newTestStore(t, det)
	if _, err := s.Enroll(context.Background(), Request{RegID: "R1", Name: "A", Images: [][]byte{jpegBytes(t)}}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	n, err := s.DeleteAll()
	if err != nil || n != 1 {
		t.Fatalf("DeleteAll: n=%d err=%v", n, err)
	}
	got, _ := s.Load(context.Background())
	if len(got) != 0 {
		t.Errorf("expected empty gallery, got %v", got)
	}
}

func TestEncoding_roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_encoding.npy")
	want := classroom.Embedding{0.25, -1.5, 3}
	if err := WriteEncoding(path, want); err != nil {
		t.Fatalf("WriteEncoding: %v", err)
	}
	got, err := ReadEncoding(path)
	if err != nil {
		t.Fatalf("ReadEncoding: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{enc, "data:image/jpeg;base64," + enc} {
		got, err := DecodeDataURL(in)
		if err != nil || string(got) != "hello" {
			t.Errorf("DecodeDataURL(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := DecodeDataURL("data:image/jpeg;base64,***"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName(" Ada-Lovelace_1 "); got != "AdaLovelace_1" {
		t.Errorf("unexpected %q", got)
	}
}
