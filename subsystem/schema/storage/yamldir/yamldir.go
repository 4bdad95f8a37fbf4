// Package yamldir implements a read-only schema storage backend that
// loads form and workflow definitions from a directory of YAML files.
//
// Each file with a .yaml or .yml extension holds one form definition:
//
//	form:
//	  id: expense
//	  fields:
//	    - name: amount
//	      type: number
//	      required: true
//	workflow:
//	  name: expense-approval
//	  steps:
//	    - name: review
//	      order: 1
//	      assignment: {group: managers}
//	      actions: [{action_type: approve}]
//
// Keys are the same as the JSON API. The workflow key is optional and its
// form_id defaults to the form ID.
package yamldir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/workflow"

	"gopkg.in/yaml.v3"
)

// definition is a single YAML definition file.
type definition struct {
	Form     *form.Schema       `json:"form"`
	Workflow *workflow.Template `json:"workflow,omitempty"`
}

// YAMLDir serves form schemas and workflow templates from YAML files.
type YAMLDir struct {
	path string

	mu        sync.RWMutex
	schemas   map[string]*form.Schema
	templates map[string]*workflow.Template
}

// New loads the definitions in the directory at path.
func New(path string) (*YAMLDir, error) {
	s := &YAMLDir{path: path}
	return s, s.Load()
}

// Path returns the definition directory.
func (s *YAMLDir) Path() string {
	return s.path
}

// decode unmarshals YAML into v through JSON so the JSON field names
// and custom JSON decoding of the definition types apply.
func decode(b []byte, v interface{}) error {
	var doc interface{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	j, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(j, v)
}

func loadFile(path string) (*definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def := new(definition)
	if err = decode(b, def); err != nil {
		return nil, err
	}
	if def.Form == nil {
		return nil, errors.New("missing form")
	}
	if err = def.Form.Check(); err != nil {
		return nil, err
	}
	if def.Workflow != nil {
		if def.Workflow.FormID == "" {
			def.Workflow.FormID = def.Form.ID
		} else if def.Workflow.FormID != def.Form.ID {
			return nil, fmt.Errorf("workflow form id mismatch: %s", def.Workflow.FormID)
		}
		if err = def.Workflow.Check(); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// Load (re)reads all definitions.
// On any error the previously loaded definitions are kept.
func (s *YAMLDir) Load() error {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("reading definition dir: %w", err)
	}
	schemas := make(map[string]*form.Schema)
	templates := make(map[string]*workflow.Template)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := loadFile(filepath.Join(s.path, entry.Name()))
		if err != nil {
			return fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		if _, ok := schemas[def.Form.ID]; ok {
			return fmt.Errorf("loading %s: duplicate form id: %s", entry.Name(), def.Form.ID)
		}
		schemas[def.Form.ID] = def.Form
		if def.Workflow != nil {
			templates[def.Form.ID] = def.Workflow
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas = schemas
	s.templates = templates
	return nil
}

// RetrieveFormSchema returns the loaded form schema by form ID.
func (s *YAMLDir) RetrieveFormSchema(_ context.Context, formID string) (*form.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[formID], nil
}

// RetrieveWorkflowTemplate returns the loaded workflow template by form ID.
func (s *YAMLDir) RetrieveWorkflowTemplate(_ context.Context, formID string) (*workflow.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[formID], nil
}

// ListFormIDs returns the sorted IDs of the loaded form schemas.
func (s *YAMLDir) ListFormIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.schemas))
	for id := range s.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
