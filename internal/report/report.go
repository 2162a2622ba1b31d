// Package report reads the per-student engagement CSVs written during
// monitoring sessions and summarizes them.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"classroom-monitor/internal/classroom"
)

// ErrNotFound is returned when a student has no report.
var ErrNotFound = errors.New("report not found")

// Suggestion thresholds and texts.
const (
	slouchingLimit   = 5
	inattentionLimit = 3

	SuggestPosture   = "Maintain better sitting posture."
	SuggestFocus     = "Stay focused during the session."
	SuggestPositive  = "Try to stay positive and take breaks if needed."
	topEmotionsCount = 3
)

var negativeEmotions = map[string]bool{"Sad": true, "Angry": true, "Fear": true}

// Row is one engagement sample as stored on disk.
type Row struct {
	Timestamp  string  `json:"timestamp"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Posture    string  `json:"posture"`
	Eyes       string  `json:"eyes"`
	Attention  string  `json:"attention"`
}

// File is a report available for download.
type File struct {
	Name      string              `json:"name"`
	StudentID classroom.StudentID `json:"student_id"`
	URL       string              `json:"url"`
}

// EmotionCount is how often an emotion was logged.
type EmotionCount struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

// Summary condenses a student's report.
type Summary struct {
	StudentID   classroom.StudentID `json:"student_id"`
	Samples     int                 `json:"samples"`
	From        string              `json:"from,omitempty"`
	To          string              `json:"to,omitempty"`
	TopEmotions []EmotionCount      `json:"top_emotions"`
	Slouching   int                 `json:"slouching"`
	EyesClosed  int                 `json:"eyes_closed"`
	Inattentive int                 `json:"inattentive"`
	Suggestions []string            `json:"suggestions"`
}

// Reader serves the reports under dir.
type Reader struct {
	dir     string
	urlBase string
}

// NewReader returns a Reader over dir. urlBase prefixes download URLs
// returned by List.
func NewReader(dir, urlBase string) *Reader {
	return &Reader{dir: dir, urlBase: strings.TrimSuffix(urlBase, "/")}
}

// List returns every report file, sorted by name. A missing directory is an
// empty list.
func (r *Reader) List() ([]File, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reports dir: %w", err)
	}
	out := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		out = append(out, File{
			Name:      e.Name(),
			StudentID: classroom.StudentID(strings.TrimSuffix(e.Name(), ".csv")),
			URL:       r.urlBase + "/" + e.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open returns the raw CSV named name (e.g. "S1.csv").
func (r *Reader) Open(name string) (*os.File, error) {
	if !strings.HasSuffix(name, ".csv") {
		return nil, ErrNotFound
	}
	path, err := classroom.ReportPath(r.dir, classroom.StudentID(strings.TrimSuffix(name, ".csv")))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Rows parses the report for id.
func (r *Reader) Rows(id classroom.StudentID) ([]Row, error) {
	path, err := classroom.ReportPath(r.dir, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRows(f)
}

// Summary parses and summarizes the report for id.
func (r *Reader) Summary(id classroom.StudentID) (Summary, error) {
	rows, err := r.Rows(id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(id, rows), nil
}

// ParseRows reads engagement rows. Rows with too few fields are skipped; an
// unparsable confidence reads as zero.
func ParseRows(src io.Reader) ([]Row, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	rows := []Row{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse report: %w", err)
		}
		if len(rec) < 6 {
			continue
		}
		conf, _ := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		rows = append(rows, Row{
			Timestamp:  rec[0],
			Emotion:    rec[1],
			Confidence: conf,
			Posture:    rec[3],
			Eyes:       rec[4],
			Attention:  rec[5],
		})
	}
	return rows, nil
}

// Summarize counts readings and derives suggestions. Emotions tied on count
// keep the order they first appeared in.
func Summarize(id classroom.StudentID, rows []Row) Summary {
	s := Summary{StudentID: id, Samples: len(rows), TopEmotions: []EmotionCount{}, Suggestions: []string{}}
	if len(rows) > 0 {
		s.From, s.To = rows[0].Timestamp, rows[len(rows)-1].Timestamp
	}

	counts := map[string]int{}
	var order []string
	for _, r := range rows {
		if _, seen := counts[r.Emotion]; !seen {
			order = append(order, r.Emotion)
		}
		counts[r.Emotion]++

		if r.Posture == classroom.PostureSlouching {
			s.Slouching++
		}
		if r.Eyes == classroom.EyesClosed {
			s.EyesClosed++
		}
		if r.Attention == classroom.AttentionInattentive {
			s.Inattentive++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	for i := 0; i < len(order) && i < topEmotionsCount; i++ {
		s.TopEmotions = append(s.TopEmotions, EmotionCount{Emotion: order[i], Count: counts[order[i]]})
	}

	if s.Slouching > slouchingLimit {
		s.Suggestions = append(s.Suggestions, SuggestPosture)
	}
	if s.Inattentive > inattentionLimit {
		s.Suggestions = append(s.Suggestions, SuggestFocus)
	}
	if len(s.TopEmotions) > 0 && negativeEmotions[s.TopEmotions[0].Emotion] {
		s.Suggestions = append(s.Suggestions, SuggestPositive)
	}
	return s
}
