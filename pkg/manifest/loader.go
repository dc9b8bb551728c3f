package manifest

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"
)

// Load reads all resource declarations from the given sources and
// returns a validated Set. A source may be a YAML/JSON file, a
// directory (walked recursively), or a directory of CUE files.
// Loading is pure: no cluster access, no side effects.
func Load(sources ...string) (*Set, error) {
	if len(sources) == 0 {
		return nil, &ParseError{Source: "<none>", Err: fmt.Errorf("at least one source is required")}
	}

	var resources []*Resource
	for _, src := range sources {
		loaded, err := loadSource(src)
		if err != nil {
			return nil, err
		}
		resources = append(resources, loaded...)
	}

	return NewSet(resources...)
}

// NewSet validates resources and builds an indexed set. Load uses it
// after parsing; programmatic callers can build sets directly.
func NewSet(resources ...*Resource) (*Set, error) {
	set := &Set{
		Resources: resources,
		index:     make(map[ID]*Resource, len(resources)),
	}

	for _, r := range resources {
		if err := validateResource(r); err != nil {
			return nil, err
		}
		id := r.ID()
		if prev, exists := set.index[id]; exists {
			return nil, &DuplicateResourceError{
				ID:           id,
				FirstSource:  prev.Source,
				SecondSource: r.Source,
			}
		}
		set.index[id] = r
	}

	return set, nil
}

func loadSource(src string) ([]*Resource, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, &ParseError{Source: src, Err: err}
	}

	if !info.IsDir() {
		return loadFile(src)
	}

	if isCUEPackage(src) {
		return loadCUEPackage(src)
	}

	var resources []*Resource
	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Nested CUE packages are loaded as a unit, not file by file.
			if path != src && isCUEPackage(path) {
				loaded, cueErr := loadCUEPackage(path)
				if cueErr != nil {
					return cueErr
				}
				resources = append(resources, loaded...)
				return fs.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			loaded, fileErr := loadFile(path)
			if fileErr != nil {
				return fileErr
			}
			resources = append(resources, loaded...)
		}
		return nil
	})
	if walkErr != nil {
		if IsValidation(walkErr) {
			return nil, walkErr
		}
		return nil, &ParseError{Source: src, Err: walkErr}
	}
	return resources, nil
}

// loadFile decodes one or more documents from a YAML or JSON file.
func loadFile(path string) ([]*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}

	var resources []*Resource
	decoder := k8syaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	for {
		obj := map[string]interface{}{}
		if err := decoder.Decode(&obj); err != nil {
			if err == io.EOF {
				break
			}
			return nil, &ParseError{Source: path, Err: err}
		}
		if len(obj) == 0 {
			// Empty document (e.g. trailing "---").
			continue
		}
		r, err := NewResource(obj, path)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// NewResource wraps a decoded document and parses its explicit
// dependency annotation.
func NewResource(obj map[string]interface{}, source string) (*Resource, error) {
	r := &Resource{
		Object: unstructured.Unstructured{Object: obj},
		Source: source,
	}

	raw := r.Object.GetAnnotations()[AnnotationDependsOn]
	if raw == "" {
		return r, nil
	}
	for _, ref := range strings.Split(raw, ",") {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		id, err := ParseID(ref)
		if err != nil {
			return nil, &SchemaError{
				Source:   source,
				Resource: r.ID().String(),
				Field:    "metadata.annotations[" + AnnotationDependsOn + "]",
				Reason:   err.Error(),
			}
		}
		r.DependsOn = append(r.DependsOn, id)
	}
	return r, nil
}

// isCUEPackage reports whether dir directly contains CUE files.
func isCUEPackage(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			return true
		}
	}
	return false
}

// SplitList splits a comma-separated annotation value into trimmed,
// sorted, non-empty entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	sort.Strings(out)
	return out
}
