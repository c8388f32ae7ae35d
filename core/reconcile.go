package core

import "pkt.systems/codeforge/schema"

// FileDefaults supplies the target for fragments that carry no name or type.
type FileDefaults struct {
	Name schema.FileName
	Type schema.FileType
}

// ApplyFragment folds one fragment into files and returns the new
// collection. files is never modified: the result is a fresh slice, so a
// snapshot taken before the call stays valid. An empty delta returns files
// unchanged.
func ApplyFragment(files []schema.File, frag schema.Fragment, defaults FileDefaults) []schema.File {
	if frag.Delta == "" {
		return files
	}
	name := defaults.Name
	fileType := defaults.Type
	if frag.Kind == schema.FragmentNamed {
		if frag.Name != "" {
			name = frag.Name
		}
		if frag.Type != "" {
			fileType = schema.NormalizeFileType(string(frag.Type))
		}
	}
	if fileType == "" {
		fileType = schema.FileTypeJava
	}

	next := make([]schema.File, len(files), len(files)+1)
	copy(next, files)
	for i := range next {
		if next[i].Name == name {
			next[i].Content += frag.Delta
			return next
		}
	}
	return append(next, schema.File{Name: name, Type: fileType, Content: frag.Delta})
}
