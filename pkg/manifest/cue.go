package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// loadCUEPackage evaluates a CUE package directory and extracts its
// resource declarations. The package must export either a top-level
// `resources` list or a single top-level object per file.
func loadCUEPackage(dir string) ([]*Resource, error) {
	ctx := cuecontext.New()

	// File arguments rather than "." so plain directories of CUE files
	// load without a cue.mod module context.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ParseError{Source: dir, Err: err}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, e.Name())
		}
	}

	instances := load.Instances(files, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ParseError{Source: dir, Err: fmt.Errorf("no CUE instances found")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &ParseError{Source: dir, Err: inst.Err}
	}

	value := ctx.BuildInstance(inst)
	if value.Err() != nil {
		return nil, &ParseError{Source: dir, Err: value.Err()}
	}

	resourcesValue := value.LookupPath(cue.ParsePath("resources"))
	if !resourcesValue.Exists() {
		return nil, &ParseError{Source: dir, Err: fmt.Errorf("CUE package does not export a \"resources\" list")}
	}

	iter, err := resourcesValue.List()
	if err != nil {
		return nil, &ParseError{Source: dir, Err: fmt.Errorf("\"resources\" is not a list: %w", err)}
	}

	var resources []*Resource
	for iter.Next() {
		obj, err := decodeCUEValue(iter.Value())
		if err != nil {
			return nil, &ParseError{Source: dir, Err: err}
		}
		r, err := NewResource(obj, dir)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// decodeCUEValue converts a concrete CUE value into a plain map by
// round-tripping through JSON, matching how rendered graph nodes are
// decoded elsewhere in the ecosystem.
func decodeCUEValue(v cue.Value) (map[string]interface{}, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("resource is not concrete: %w", err)
	}
	obj := map[string]interface{}{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode resource: %w", err)
	}
	return obj, nil
}
