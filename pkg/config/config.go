package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFilename = ".bootgate.yaml"

// File is the optional plan file. It adds dependencies and startup tasks on
// top of the built-in Django plan.
type File struct {
	Dependencies []Dependency `yaml:"dependencies,omitempty"`
	Tasks        []Task       `yaml:"tasks,omitempty"`
}

type Dependency struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "database"|"cache"|"tcp"|"http"
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Required *bool  `yaml:"required,omitempty"`
}

type Task struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Dir         string            `yaml:"dir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	BestEffort  bool              `yaml:"best_effort,omitempty"`
	OnlyInDebug bool              `yaml:"only_in_debug,omitempty"`
	OnlyIfFile  string            `yaml:"only_if_file,omitempty"`
	Priority    int               `yaml:"priority,omitempty"`
}

// IsRequired defaults to true when the plan file does not say otherwise.
func (d Dependency) IsRequired() bool {
	return d.Required == nil || *d.Required
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read plan file")
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, &Error{Key: path, Err: errors.Wrap(err, "parse plan yaml")}
	}
	for i, t := range f.Tasks {
		if t.Name == "" {
			return nil, &Error{Key: path, Err: errors.Errorf("task #%d has no name", i+1)}
		}
		if len(t.Command) == 0 {
			return nil, &Error{Key: path, Err: errors.Errorf("task %q has no command", t.Name)}
		}
	}
	for i, d := range f.Dependencies {
		if d.Name == "" {
			return nil, &Error{Key: path, Err: errors.Errorf("dependency #%d has no name", i+1)}
		}
	}
	return &f, nil
}

func LoadOptional(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, "stat plan file")
	}
	return LoadFromFile(path)
}
