package schema

// FragmentKind tags the two fragment variants.
type FragmentKind int

const (
	// FragmentRawText carries text for the session's implicit file.
	FragmentRawText FragmentKind = iota
	// FragmentNamed carries text for an explicitly named file.
	FragmentNamed
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentRawText:
		return "raw"
	case FragmentNamed:
		return "named"
	default:
		return "unknown"
	}
}

// Fragment is one decoded unit of stream data.
type Fragment struct {
	Kind  FragmentKind
	Name  FileName
	Type  FileType
	Delta string
}

// RawText builds a fragment targeting the session default file.
func RawText(delta string) Fragment {
	return Fragment{Kind: FragmentRawText, Delta: delta}
}

// Named builds a fragment targeting an explicit file.
func Named(name FileName, fileType FileType, delta string) Fragment {
	return Fragment{Kind: FragmentNamed, Name: name, Type: fileType, Delta: delta}
}

// FragmentRecord is the wire form of a named fragment in NDJSON framing.
type FragmentRecord struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	ContentChunk string `json:"contentChunk"`
}

// Fragment converts the record into a fragment. Records without a name
// become raw text.
func (r FragmentRecord) Fragment() Fragment {
	if r.Name == "" {
		return RawText(r.ContentChunk)
	}
	return Named(FileName(r.Name), FileType(r.Type), r.ContentChunk)
}
