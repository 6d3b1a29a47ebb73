package buildsys

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

func stringSeq(items []string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, item := range items {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
	}
	return node
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// DescriptionNode converts desc into a YAML node that keeps the order of source sets and steps
func DescriptionNode(desc *Description) *yaml.Node {
	sources := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, set := range desc.Sources {
		files := set.Files
		if files == nil {
			files = set.Specs
		}
		sources.Content = append(sources.Content, scalar(set.Name), stringSeq(files))
	}

	steps := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, step := range desc.Steps {
		steps.Content = append(steps.Content, scalar(step.Name), stringSeq(step.Args))
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	root.Content = append(root.Content, scalar("name"), scalar(desc.Name))
	if desc.Target != "" {
		root.Content = append(root.Content, scalar("target"), scalar(desc.Target))
	}
	root.Content = append(root.Content, scalar("source"), sources, scalar("build"), steps)

	return root
}

// WriteDescription writes desc as YAML. After a run this shows the expanded sources and resolved steps.
func WriteDescription(w io.Writer, desc *Description) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	err := encoder.Encode(DescriptionNode(desc))
	if err != nil {
		return eris.Wrap(err, "failed to encode the build description")
	}

	return encoder.Close()
}
