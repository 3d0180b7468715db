package resource

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// SourceFile is one original source embedded in a source map.
type SourceFile struct {
	Name    string
	Content string
}

// UnpackSourceMap returns the sources embedded in a source map through its
// sourcesContent array. Index maps with sections are flattened. ok is false
// when content is not a source map with embedded sources.
func UnpackSourceMap(content string) (files []SourceFile, ok bool) {
	if !gjson.Valid(content) {
		return nil, false
	}
	return unpack(gjson.Parse(content), 0)
}

func unpack(m gjson.Result, depth int) ([]SourceFile, bool) {
	if !m.IsObject() || depth > 4 {
		return nil, false
	}

	if sections := m.Get("sections"); sections.IsArray() {
		var files []SourceFile
		found := false
		sections.ForEach(func(_, section gjson.Result) bool {
			if sub, ok := unpack(section.Get("map"), depth+1); ok {
				files = append(files, sub...)
				found = true
			}
			return true
		})
		return files, found
	}

	contents := m.Get("sourcesContent")
	if !contents.IsArray() {
		return nil, false
	}

	names := m.Get("sources").Array()
	var files []SourceFile
	for i, c := range contents.Array() {
		if c.Type != gjson.String || c.Str == "" {
			continue
		}
		name := fmt.Sprintf("source-%d", i)
		if i < len(names) && names[i].String() != "" {
			name = names[i].String()
		}
		files = append(files, SourceFile{Name: name, Content: c.Str})
	}
	return files, true
}
