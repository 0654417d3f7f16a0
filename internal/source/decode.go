package source

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidExpression = errors.New("invalid source expression")

// Expr wraps a Source so it can be embedded in YAML documents
type Expr struct {
	Source
}

// UnmarshalYAML implements yaml.Unmarshaler
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	src, err := DecodeNode(node)
	if err != nil {
		return err
	}
	e.Source = src
	return nil
}

// Decode parses a YAML source expression such as
//
//	and:
//	  - "#project"
//	  - not: {folder: Archive}
func Decode(data []byte) (Source, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if doc.Kind == 0 {
		return Empty{}, nil
	}
	return DecodeNode(&doc)
}

// DecodeNode converts a parsed YAML node into a Source
func DecodeNode(node *yaml.Node) (Source, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Empty{}, nil
		}
		return DecodeNode(node.Content[0])
	case yaml.AliasNode:
		return DecodeNode(node.Alias)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return Empty{}, nil
		}
		return ParseScalar(node.Value), nil
	case yaml.MappingNode:
		return decodeMapping(node)
	default:
		return nil, nodeError(node, "expected a scalar or a mapping")
	}
}

func decodeMapping(node *yaml.Node) (Source, error) {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	var kind string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := strings.ToLower(node.Content[i].Value)
		fields[key] = node.Content[i+1]
		switch key {
		case "direction":
			continue
		case "empty", "tag", "folder", "csv", "link", "not", "and", "or":
			if kind != "" {
				return nil, nodeError(node, fmt.Sprintf("both %q and %q given", kind, key))
			}
			kind = key
		default:
			return nil, nodeError(node.Content[i], fmt.Sprintf("unknown key %q", key))
		}
	}

	if _, ok := fields["direction"]; ok && kind != "link" {
		return nil, nodeError(node, "direction is only valid with link")
	}

	value := fields[kind]
	switch kind {
	case "", "empty":
		return Empty{}, nil
	case "tag":
		tag, err := scalar(value)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		return Tag{Tag: tag}, nil
	case "folder":
		prefix, err := scalar(value)
		if err != nil {
			return nil, err
		}
		return Folder{Prefix: prefix}, nil
	case "csv":
		p, err := scalar(value)
		if err != nil {
			return nil, err
		}
		return CSV{Path: p}, nil
	case "link":
		return decodeLink(value, fields["direction"])
	case "not":
		child, err := DecodeNode(value)
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	default:
		return decodeList(kind, value)
	}
}

func decodeLink(value, direction *yaml.Node) (Source, error) {
	file, err := scalar(value)
	if err != nil {
		return nil, err
	}
	file = strings.TrimSuffix(strings.TrimPrefix(file, "[["), "]]")

	link := Link{File: file, Direction: Incoming}
	if direction != nil {
		d, err := scalar(direction)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(d) {
		case "incoming", "in":
		case "outgoing", "out":
			link.Direction = Outgoing
		default:
			return nil, nodeError(direction, fmt.Sprintf("unknown direction %q", d))
		}
	}
	return link, nil
}

func decodeList(kind string, value *yaml.Node) (Source, error) {
	if value.Kind != yaml.SequenceNode {
		return nil, nodeError(value, kind+" expects a list")
	}
	children := make([]Source, 0, len(value.Content))
	for _, item := range value.Content {
		child, err := DecodeNode(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if kind == "or" {
		return OrOf(children...), nil
	}
	return AndOf(children...), nil
}

func scalar(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", nodeError(node, "expected a string")
	}
	return strings.TrimSpace(node.Value), nil
}

func nodeError(node *yaml.Node, msg string) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidExpression, node.Line, msg)
}
