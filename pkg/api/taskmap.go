package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TaskMap is an ordered mapping from task name to TaskConfig. Task names are
// caller-chosen, unique, and index the corresponding TaskResult entries after
// a run. Declared order is preserved through serialization and is the order
// launchers process tasks in.
type TaskMap struct {
	names []string
	tasks map[string]TaskConfig
}

func NewTaskMap() TaskMap {
	return TaskMap{tasks: map[string]TaskConfig{}}
}

// Set stores a task configuration under name and returns the receiver's
// address for chaining. Setting an existing name replaces the configuration
// but keeps the name's original position.
func (t *TaskMap) Set(name string, config TaskConfig) *TaskMap {
	if t.tasks == nil {
		t.tasks = map[string]TaskConfig{}
	}
	if _, exists := t.tasks[name]; !exists {
		t.names = append(t.names, name)
	}
	t.tasks[name] = config
	return t
}

func (t TaskMap) Get(name string) (TaskConfig, bool) {
	config, ok := t.tasks[name]
	return config, ok
}

// Names returns the task names in declared order.
func (t TaskMap) Names() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

func (t TaskMap) Len() int {
	return len(t.names)
}

// Equal reports structural equality. Declared order is not significant for
// equality, only the name/configuration pairs.
func (t TaskMap) Equal(other TaskMap) bool {
	if len(t.names) != len(other.names) {
		return false
	}
	for name, config := range t.tasks {
		otherConfig, ok := other.tasks[name]
		if !ok || !config.Equal(otherConfig) {
			return false
		}
	}
	return true
}

func (t TaskMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		config, err := json.Marshal(t.tasks[name])
		if err != nil {
			return nil, err
		}
		buf.Write(config)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *TaskMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("tasks must be a JSON object")
	}
	t.names = nil
	t.tasks = map[string]TaskConfig{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("task name must be a string")
		}
		var config TaskConfig
		if err := dec.Decode(&config); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
		t.Set(name, config)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
