// Package enrollment keeps the enrolled face gallery on disk: one folder per
// student holding their captured photos and an averaged encoding.
package enrollment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"classroom-monitor/internal/classroom"

	"github.com/sbinet/npyio"
)

var (
	// ErrNoFaceFound is returned by Enroll when none of the images contains a face.
	ErrNoFaceFound = errors.New("no face detected in any image")
	// ErrInvalidRequest is returned for enrollment requests that cannot be stored.
	ErrInvalidRequest = errors.New("invalid enrollment request")
)

const encodingSuffix = "_encoding.npy"

// Request is one student's enrollment: an ID, a display name and one or more
// photos (raw image bytes).
type Request struct {
	RegID  string
	Name   string
	Images [][]byte
}

// Result describes a stored enrollment.
type Result struct {
	ID         classroom.StudentID `json:"reg_id"`
	Name       string              `json:"name"`
	Faces      int                 `json:"faces"`
	Images     int                 `json:"images"`
	FolderName string              `json:"folder"`
}

// Store reads and writes the gallery under dir. Enroll and DeleteAll are
// serialized; Load may run alongside them and sees either the old or the new
// folder.
type Store struct {
	dir      string
	detector classroom.FaceDetector
	events   *classroom.EventLog
	log      *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewStore returns a Store over dir. events may be nil, in which case
// registrations are not written to the session log.
func NewStore(dir string, detector classroom.FaceDetector, events *classroom.EventLog, log *slog.Logger) *Store {
	return &Store{dir: dir, detector: detector, events: events, log: log, now: time.Now}
}

// Dir returns the gallery root.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns every enrolled identity. A folder's saved encoding is used
// when present; otherwise each of its JPEG photos is encoded and the first
// face in every photo becomes an identity. A missing gallery directory yields
// an empty gallery.
func (s *Store) Load(ctx context.Context) ([]classroom.Identity, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn("face data directory does not exist", slog.String("dir", s.dir))
		return []classroom.Identity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}

	var out []classroom.Identity
	students := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(s.dir, e.Name())
		id := classroom.StudentID(strings.Split(e.Name(), "_")[0])

		embs, err := s.loadFolder(ctx, folder, e.Name())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("skipping enrollment folder", slog.String("folder", folder), slog.String("error", err.Error()))
			continue
		}
		if len(embs) > 0 {
			students++
		}
		for _, emb := range embs {
			out = append(out, classroom.Identity{ID: id, Embedding: emb})
		}
	}

	s.log.Debug("gallery read", slog.Int("encodings", len(out)), slog.Int("students", students))
	return out, nil
}

func (s *Store) loadFolder(ctx context.Context, folder, name string) ([]classroom.Embedding, error) {
	npyPath := filepath.Join(folder, name+encodingSuffix)
	if _, err := os.Stat(npyPath); err == nil {
		emb, err := ReadEncoding(npyPath)
		if err != nil {
			return nil, err
		}
		return []classroom.Embedding{emb}, nil
	}

	photos, err := filepath.Glob(filepath.Join(folder, "*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(photos)

	var out []classroom.Embedding
	for _, p := range photos {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		emb, ok, err := s.encode(ctx, data)
		if err != nil {
			s.log.Debug("photo not encoded", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if ok {
			out = append(out, emb)
		}
	}
	return out, nil
}

// encode returns the embedding of the first face in an image.
func (s *Store) encode(ctx context.Context, data []byte) (classroom.Embedding, bool, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}
	faces, err := s.detector.DetectFaces(ctx, img)
	if err != nil {
		return nil, false, err
	}
	if len(faces) == 0 {
		return nil, false, nil
	}
	return faces[0].Embedding, true, nil
}

// Enroll stores the photos under <regID>_<name>, averages the embeddings of
// every photo that contains a face and saves the mean encoding. If no photo
// contains a face the folder is removed and ErrNoFaceFound is returned.
func (s *Store) Enroll(ctx context.Context, req Request) (Result, error) {
	name := SanitizeName(req.Name)
	regID := strings.TrimSpace(req.RegID)
	if err := validateRegID(regID); err != nil {
		return Result{}, err
	}
	if name == "" {
		return Result{}, fmt.Errorf("%w: name is empty", ErrInvalidRequest)
	}
	if len(req.Images) == 0 {
		return Result{}, fmt.Errorf("%w: no images", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	folderName := regID + "_" + name
	folder := filepath.Join(s.dir, folderName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return Result{}, fmt.Errorf("create student folder: %w", err)
	}

	var embs []classroom.Embedding
	var saved []string
	for i, data := range req.Images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			s.log.Info("enrollment image rejected", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		path := filepath.Join(folder, fmt.Sprintf("%s_%d.jpg", folderName, i))
		if err := writeJPEG(path, img); err != nil {
			s.log.Warn("save enrollment image", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		saved = append(saved, path)

		faces, err := s.detector.DetectFaces(ctx, img)
		if err != nil {
			s.log.Warn("enrollment face detection failed", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		if len(faces) > 0 {
			embs = append(embs, faces[0].Embedding)
		}
	}

	if len(embs) == 0 {
		for _, p := range saved {
			_ = os.Remove(p)
		}
		_ = os.Remove(folder)
		return Result{}, ErrNoFaceFound
	}

	mean, err := Mean(embs)
	if err != nil {
		return Result{}, err
	}
	if err := WriteEncoding(filepath.Join(folder, folderName+encodingSuffix), mean); err != nil {
		return Result{}, err
	}

	if s.events != nil {
		if err := s.events.AppendRegistration(s.now(), classroom.StudentID(regID), name); err != nil {
			s.log.Warn("append registration row failed", slog.String("error", err.Error()))
		}
	}

	s.log.Info("student enrolled",
		slog.String("student_id", regID),
		slog.Int("images", len(saved)),
		slog.Int("faces", len(embs)))
	return Result{
		ID:         classroom.StudentID(regID),
		Name:       name,
		Faces:      len(embs),
		Images:     len(saved),
		FolderName: folderName,
	}, nil
}

// DeleteAll removes every student folder. Loose files in the gallery root
// are left alone.
func (s *Store) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read gallery: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return n, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// SanitizeName keeps letters, digits, spaces and underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// The registration ID is recovered from the folder name by splitting on the
// first underscore, so it may not contain one.
func validateRegID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `_/\`) {
		return fmt.Errorf("%w: bad registration id %q", ErrInvalidRequest, id)
	}
	return nil
}

// DecodeDataURL decodes a base64 image, with or without a
// "data:image/...;base64," prefix.
func DecodeDataURL(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return data, nil
}

// Mean averages equal-length embeddings component-wise.
func Mean(embs []classroom.Embedding) (classroom.Embedding, error) {
	if len(embs) == 0 {
		return nil, ErrNoFaceFound
	}
	out := make(classroom.Embedding, len(embs[0]))
	for _, e := range embs {
		if len(e) != len(out) {
			return nil, fmt.Errorf("embedding length mismatch: %d vs %d", len(e), len(out))
		}
		for i, v := range e {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(embs))
	}
	return out, nil
}

// ReadEncoding loads a 1-D float64 array saved in NumPy .npy format.
func ReadEncoding(path string) (classroom.Embedding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var v []float64
	if err := npyio.Read(f, &v); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return classroom.Embedding(v), nil
}

// WriteEncoding saves emb as a 1-D float64 .npy array.
func WriteEncoding(path string, emb classroom.Embedding) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := npyio.Write(f, []float64(emb)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeJPEG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
}
