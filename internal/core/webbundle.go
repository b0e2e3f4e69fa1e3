package core

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StripTopLevelKey removes key and its value from a YAML document while
// leaving every other byte untouched, comments included. The document is
// parsed only to locate the key; the cut is made on raw lines. Full-line
// comments at column zero directly above the following key stay with that
// key. It reports whether anything was removed.
func StripTopLevelKey(doc []byte, key string) ([]byte, bool, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, false, fmt.Errorf("parsing document: %w", err)
	}
	if len(root.Content) == 0 {
		return doc, false, nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return doc, false, nil
	}
	if mapping.Style&yaml.FlowStyle != 0 {
		return nil, false, errors.New("flow-style mappings are not supported")
	}

	idx := -1
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return doc, false, nil
	}

	lines := splitLinesKeepEnds(doc)
	start := mapping.Content[idx].Line - 1
	end := len(lines)
	if idx+2 < len(mapping.Content) {
		end = mapping.Content[idx+2].Line - 1
		for end > start+1 && isDetachedLine(lines[end-1]) {
			end--
		}
	} else {
		// Trailing document markers belong to the document, not the key.
		for end > start+1 && isDocumentEnd(lines[end-1]) {
			end--
		}
	}
	if start < 0 || start >= len(lines) || end <= start {
		return nil, false, fmt.Errorf("cannot locate %q in document", key)
	}

	var out bytes.Buffer
	out.Grow(len(doc))
	for _, l := range lines[:start] {
		out.Write(l)
	}
	for _, l := range lines[end:] {
		out.Write(l)
	}
	return out.Bytes(), true, nil
}

func splitLinesKeepEnds(doc []byte) [][]byte {
	var lines [][]byte
	for len(doc) > 0 {
		i := bytes.IndexByte(doc, '\n')
		if i < 0 {
			lines = append(lines, doc)
			break
		}
		lines = append(lines, doc[:i+1])
		doc = doc[i+1:]
	}
	return lines
}

// isDetachedLine reports whether line is blank or a comment starting at
// column zero.
func isDetachedLine(line []byte) bool {
	trimmed := bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return true
	}
	return trimmed[0] == '#'
}

func isDocumentEnd(line []byte) bool {
	t := bytes.TrimSpace(line)
	return bytes.Equal(t, []byte("...")) || bytes.Equal(t, []byte("---"))
}
