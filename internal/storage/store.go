// Package storage persists closed-loop runs as a metadata file plus a CSV
// trajectory under a per-run directory.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/mpcart/internal/sim"
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

type RunMetadata struct {
	ID              string             `json:"id"`
	Timestamp       time.Time          `json:"timestamp"`
	Horizon         int                `json:"horizon"`
	Dt              float64            `json:"dt"`
	Steps           int                `json:"steps"`
	InfeasibleSteps []int              `json:"infeasible_steps,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// Save writes a run directory containing metadata.json and trajectory.csv
// and returns the run id.
func (s *Store) Save(horizon int, dt float64, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("run_%d", time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:              runID,
		Timestamp:       time.Now(),
		Horizon:         horizon,
		Dt:              dt,
		Steps:           result.StepsTaken,
		InfeasibleSteps: result.InfeasibleSteps,
		Metrics:         result.Metrics,
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

	csvFile, err := os.Create(filepath.Join(runDir, "trajectory.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(result.States) == 0 {
		return runID, nil
	}

	header := []string{"time"}
	for i := range result.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	numInputs := 0
	if len(result.Inputs) > 0 {
		numInputs = len(result.Inputs[0])
		for i := 0; i < numInputs; i++ {
			header = append(header, fmt.Sprintf("u%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range result.States {
		row := []string{strconv.FormatFloat(result.Times[i], 'f', 6, 64)}
		for _, val := range result.States[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		// The input record is one shorter than the state record; the last
		// state row carries empty input columns.
		if i < len(result.Inputs) {
			for _, val := range result.Inputs[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < numInputs; j++ {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTrajectory reads back the stored time, state and input columns.
// Input rows are one shorter than state rows.
func (s *Store) LoadTrajectory(runID string) (states [][]float64, inputs [][]float64, times []float64, err error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "trajectory.csv"))
	if err != nil {
		return nil, nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) < 2 {
		return [][]float64{}, [][]float64{}, []float64{}, nil
	}

	header := records[0]
	numStates, numInputs := 0, 0
	for _, col := range header {
		if len(col) > 0 && col[0] == 'x' {
			numStates++
		}
		if len(col) > 0 && col[0] == 'u' {
			numInputs++
		}
	}

	for _, record := range records[1:] {
		if len(record) < 1+numStates {
			continue
		}
		tv, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		state := make([]float64, numStates)
		for i := 0; i < numStates; i++ {
			state[i], _ = strconv.ParseFloat(record[1+i], 64)
		}
		times = append(times, tv)
		states = append(states, state)

		if numInputs > 0 && len(record) >= 1+numStates+numInputs && record[1+numStates] != "" {
			input := make([]float64, numInputs)
			for i := 0; i < numInputs; i++ {
				input[i], _ = strconv.ParseFloat(record[1+numStates+i], 64)
			}
			inputs = append(inputs, input)
		}
	}
	return states, inputs, times, nil
}
