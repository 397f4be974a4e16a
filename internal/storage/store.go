package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Report kinds.
const (
	KindSelfCheck = "selfcheck"
	KindBench     = "bench"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type Metadata struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Library   string             `json:"library"`
	Version   string             `json:"version"`
	Allocator string             `json:"allocator"`
	Timestamp time.Time          `json:"timestamp"`
	OK        bool               `json:"ok"`
	Errors    []string           `json:"errors,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Result is what a self-check or bench run hands to Save. Series are
// written column-wise to samples.csv in Names order.
type Result struct {
	OK      bool
	Errors  []string
	Metrics map[string]float64
	Names   []string
	Series  map[string][]float64
}

func (s *Store) Save(kind, library, version, allocator string, result *Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", kind, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := Metadata{
		ID:        runID,
		Kind:      kind,
		Library:   library,
		Version:   version,
		Allocator: allocator,
		Timestamp: now,
		OK:        result.OK,
		Errors:    result.Errors,
		Metrics:   result.Metrics,
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if len(result.Names) == 0 {
		return runID, nil
	}

	csvFile, err := os.Create(filepath.Join(runDir, "samples.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(append([]string{"index"}, result.Names...)); err != nil {
		return "", err
	}

	rows := 0
	for _, name := range result.Names {
		rows = max(rows, len(result.Series[name]))
	}
	for i := range rows {
		row := []string{strconv.Itoa(i)}
		for _, name := range result.Names {
			col := result.Series[name]
			if i < len(col) {
				row = append(row, strconv.FormatFloat(col[i], 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return runID, w.Error()
}

// List returns every stored report, newest first.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Metadata{}, nil
		}
		return nil, err
	}

	runs := make([]Metadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("report %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadSamples reads samples.csv back into named series. Empty cells mark
// the end of a shorter series.
func (s *Store) LoadSamples(runID string) ([]string, map[string][]float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "samples.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return []string{}, map[string][]float64{}, nil
	}

	names := records[0][1:]
	series := make(map[string][]float64, len(names))
	for _, record := range records[1:] {
		for j, cell := range record[1:] {
			if j >= len(names) || cell == "" {
				continue
			}
			val, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("report %s: %s: %w", runID, names[j], err)
			}
			series[names[j]] = append(series[names[j]], val)
		}
	}
	return names, series, nil
}
