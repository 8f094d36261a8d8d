package datasets

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/eval-forge/eval-forge/internal/pipeline"
	"github.com/eval-forge/eval-forge/pkg/api"
)

// Loader resolves dataset references of one format. The orchestration core
// never interprets dataset bytes; everything format-specific lives behind
// this interface.
type Loader interface {
	Format() string
	Load(ctx context.Context, location string) ([]pipeline.Record, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Loader{}
)

func init() {
	Register(&jsonLoader{})
	Register(&jsonlLoader{})
}

// Register installs a loader for its format, replacing any existing one.
// Formats are an open set, which is why resolution goes through this
// registry rather than a switch.
func Register(loader Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[loader.Format()] = loader
}

// Lookup returns the loader for a format.
func Lookup(format string) (Loader, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	loader, ok := registry[format]
	return loader, ok
}

// Supported lists the registered formats.
func Supported() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	formats := make([]string, 0, len(registry))
	for format := range registry {
		formats = append(formats, format)
	}
	return formats
}

// Resolve turns a dataset reference into records using the registered
// loader for its format. An unknown format or an unreadable location is a
// data-availability error; a dataset with zero items is not.
func Resolve(ctx context.Context, ref api.DatasetRef) (*pipeline.Dataset, error) {
	loader, ok := Lookup(ref.Format)
	if !ok {
		return nil, fmt.Errorf("no dataset loader registered for format %q", ref.Format)
	}
	records, err := loader.Load(ctx, ref.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", ref.Location, err)
	}
	return &pipeline.Dataset{Ref: ref, Records: records}, nil
}

// jsonLoader reads a file containing a JSON array of objects.
type jsonLoader struct{}

func (l *jsonLoader) Format() string {
	return "json"
}

func (l *jsonLoader) Load(_ context.Context, location string) ([]pipeline.Record, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}
	var records []pipeline.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("dataset is not a JSON array of objects: %w", err)
	}
	return records, nil
}

// jsonlLoader reads a file with one JSON object per line. Blank lines are
// skipped.
type jsonlLoader struct{}

func (l *jsonlLoader) Format() string {
	return "jsonl"
}

func (l *jsonlLoader) Load(_ context.Context, location string) ([]pipeline.Record, error) {
	file, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []pipeline.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var record pipeline.Record
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return nil, fmt.Errorf("line %d is not a JSON object: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
