package buildsys

import (
	"context"
	"io/ioutil"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultBuildFiles lists the file names searched for a build description, in order of preference
var DefaultBuildFiles = []string{"build.json", "build.yml", "build.yaml"}

type orderedEntry struct {
	key    string
	values []string
}

// LoadDescription reads a build description from disk. JSON descriptions are read by the YAML parser since
// every JSON document is valid YAML.
func LoadDescription(ctx context.Context, filename string) (*Description, error) {
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	log(ctx).Debug().Str("path", filename).Msg("Loading build description")

	desc, err := ParseYAMLDescription(content)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", filename)
	}

	return desc, nil
}

func newDescription(name, target string, sources, steps []orderedEntry) (*Description, error) {
	if name == "" {
		return nil, eris.New("the build description has no name")
	}

	desc := &Description{
		Name:    name,
		Target:  target,
		Sources: make([]*SourceSet, 0, len(sources)),
		Steps:   make([]*Step, 0, len(steps)),
	}

	for _, entry := range sources {
		if desc.SourceSet(entry.key) != nil {
			return nil, eris.Errorf("source set %s is declared twice", entry.key)
		}
		desc.Sources = append(desc.Sources, &SourceSet{Name: entry.key, Specs: entry.values})
	}

	for _, entry := range steps {
		if desc.HasStep(entry.key) {
			return nil, eris.Errorf("step %s is declared twice, use a suffix (%s-2) to repeat it", entry.key, entry.key)
		}
		desc.Steps = append(desc.Steps, &Step{Name: entry.key, Args: entry.values})
	}

	return desc, nil
}

// ParseYAMLDescription parses a YAML or JSON build description. yaml.v3's node API is used instead of plain
// maps because the order of the source and build blocks matters.
func ParseYAMLDescription(content []byte) (*Description, error) {
	var doc yaml.Node
	err := yaml.Unmarshal(content, &doc)
	if err != nil {
		return nil, err
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, eris.New("empty build description")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.Errorf("line %d: expected a mapping at the top level", root.Line)
	}

	var name, target string
	var sources, steps []orderedEntry
	for idx := 0; idx+1 < len(root.Content); idx += 2 {
		key := root.Content[idx].Value
		value := root.Content[idx+1]

		switch key {
		case "name", "target":
			if value.Kind != yaml.ScalarNode {
				return nil, eris.Errorf("line %d: expected %s to be a string", value.Line, key)
			}
			if key == "name" {
				name = value.Value
			} else {
				target = value.Value
			}
		case "source":
			sources, err = yamlOrderedLists(value, key)
		case "build":
			steps, err = yamlOrderedLists(value, key)
		}
		if err != nil {
			return nil, err
		}
	}

	return newDescription(name, target, sources, steps)
}

func yamlOrderedLists(node *yaml.Node, field string) ([]orderedEntry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, eris.Errorf("line %d: expected %s to be a mapping", node.Line, field)
	}

	result := make([]orderedEntry, 0, len(node.Content)/2)
	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		key := node.Content[idx].Value
		value := node.Content[idx+1]

		entry := orderedEntry{key: key}
		switch value.Kind {
		case yaml.ScalarNode:
			entry.values = []string{value.Value}
		case yaml.SequenceNode:
			entry.values = make([]string, 0, len(value.Content))
			for _, item := range value.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, eris.Errorf("line %d: expected all items in %s.%s to be strings", item.Line, field, key)
				}
				entry.values = append(entry.values, item.Value)
			}
		default:
			return nil, eris.Errorf("line %d: expected %s.%s to be a list of strings", value.Line, field, key)
		}

		result = append(result, entry)
	}

	return result, nil
}
