// Package batchfile loads batch definitions from YAML.
//
// A batch file looks like:
//
//	name: nightly
//	max_concurrency: 4
//	fail_fast: false
//	tasks:
//	  - id: build
//	    command: make build
//	    repository: ./services/api
//	  - id: test
//	    command: make test
//	    repository: ./services/api
//	    priority: high
//	    estimated_duration: 5m
//	    depends_on: [build]
package batchfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// Batch is a parsed batch file.
type Batch struct {
	Name    string
	Options models.BatchOptions
	Tasks   []models.TaskRequest
}

type fileBatch struct {
	Name           string     `yaml:"name"`
	MaxConcurrency int        `yaml:"max_concurrency"`
	FailFast       bool       `yaml:"fail_fast"`
	Tasks          []fileTask `yaml:"tasks"`
}

type fileTask struct {
	ID                      string   `yaml:"id"`
	Command                 string   `yaml:"command"`
	Repository              string   `yaml:"repository"`
	Priority                string   `yaml:"priority"`
	EstimatedDuration       string   `yaml:"estimated_duration"`
	RequiresPreviousSuccess *bool    `yaml:"requires_previous_success"`
	DependsOn               []string `yaml:"depends_on"`
}

// Load reads and parses a batch file. Relative repository paths are
// resolved against the directory containing the file.
func Load(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve batch file directory: %w", err)
	}
	for i := range b.Tasks {
		repo := b.Tasks[i].TargetRepository
		if repo != "" && !filepath.IsAbs(repo) {
			b.Tasks[i].TargetRepository = filepath.Join(base, repo)
		}
	}
	return b, nil
}

// Parse decodes a batch document. Unknown fields are rejected.
func Parse(data []byte) (*Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fb fileBatch
	if err := dec.Decode(&fb); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("batch file is empty")
		}
		return nil, fmt.Errorf("decode batch file: %w", err)
	}

	b := &Batch{
		Name: fb.Name,
		Options: models.BatchOptions{
			MaxConcurrency: fb.MaxConcurrency,
			FailFast:       fb.FailFast,
			Label:          fb.Name,
		},
		Tasks: make([]models.TaskRequest, 0, len(fb.Tasks)),
	}

	for i, ft := range fb.Tasks {
		t, err := ft.toRequest()
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, ft.ID, err)
		}
		b.Tasks = append(b.Tasks, t)
	}
	return b, nil
}

func (ft fileTask) toRequest() (models.TaskRequest, error) {
	priority, err := models.ParsePriority(ft.Priority)
	if err != nil {
		return models.TaskRequest{}, err
	}

	var estimate time.Duration
	if ft.EstimatedDuration != "" {
		estimate, err = time.ParseDuration(ft.EstimatedDuration)
		if err != nil {
			return models.TaskRequest{}, fmt.Errorf("estimated_duration: %w", err)
		}
	}

	requires := true
	if ft.RequiresPreviousSuccess != nil {
		requires = *ft.RequiresPreviousSuccess
	}

	return models.TaskRequest{
		ID:                      ft.ID,
		Command:                 ft.Command,
		TargetRepository:        ft.Repository,
		Priority:                priority,
		EstimatedDuration:       estimate,
		RequiresPreviousSuccess: requires,
		DependsOn:               ft.DependsOn,
	}, nil
}

// Marshal encodes a batch back into the file format.
func Marshal(b *Batch) ([]byte, error) {
	fb := fileBatch{
		Name:           b.Name,
		MaxConcurrency: b.Options.MaxConcurrency,
		FailFast:       b.Options.FailFast,
	}
	for _, t := range b.Tasks {
		requires := t.RequiresPreviousSuccess
		ft := fileTask{
			ID:                      t.ID,
			Command:                 t.Command,
			Repository:              t.TargetRepository,
			Priority:                t.Priority.String(),
			RequiresPreviousSuccess: &requires,
			DependsOn:               t.DependsOn,
		}
		if t.EstimatedDuration > 0 {
			ft.EstimatedDuration = t.EstimatedDuration.String()
		}
		fb.Tasks = append(fb.Tasks, ft)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&fb); err != nil {
		return nil, fmt.Errorf("encode batch file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode batch file: %w", err)
	}
	return buf.Bytes(), nil
}
