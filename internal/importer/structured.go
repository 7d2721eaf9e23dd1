package importer

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ReadJSON decodes either a list of lead objects or a batch request body of
// the form {"pqls": [...]}.
func ReadJSON(r io.Reader) ([]Record, error) {
	var doc any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "json: decode leads")
	}
	return recordsFromDoc(doc, "json")
}

// ReadYAML accepts the same shapes as ReadJSON.
func ReadYAML(r io.Reader) ([]Record, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return []Record{}, nil
		}
		return nil, eris.Wrap(err, "yaml: decode leads")
	}
	return recordsFromDoc(doc, "yaml")
}

func recordsFromDoc(doc any, format string) ([]Record, error) {
	if obj, ok := doc.(map[string]any); ok {
		doc = obj["pqls"]
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, eris.Errorf("%s: expected a list of leads or an object with a \"pqls\" list", format)
	}

	out := make([]Record, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, eris.Errorf("%s: lead %d is not an object", format, i)
		}
		out = append(out, Record(obj))
	}
	return out, nil
}
