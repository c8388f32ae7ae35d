package schema

// WorkspaceID identifies one isolated set of tabs (a browser session or a
// terminal UI instance).
type WorkspaceID string

// TabID identifies a tab.
type TabID string

// TabTitle is the user-facing label of a tab.
type TabTitle string

// FileName keys a file within a tab.
type FileName string

// FileType classifies a file for display only.
type FileType string

const (
	// FileTypeJava is the classifier used when a fragment names none.
	FileTypeJava FileType = "java"
	// FileTypeJSON classifies JSON files.
	FileTypeJSON FileType = "json"
	// FileTypeXML classifies XML files.
	FileTypeXML FileType = "xml"
	// FileTypeText classifies plain text files.
	FileTypeText FileType = "txt"
)

// File is one named virtual file produced by a generation session.
type File struct {
	Name    FileName `json:"name"`
	Type    FileType `json:"type"`
	Content string   `json:"content"`
}

// LanguageClass maps a file type to the CSS class used for highlighting.
func LanguageClass(t FileType) string {
	switch NormalizeFileType(string(t)) {
	case FileTypeJava:
		return "language-java"
	case FileTypeJSON:
		return "language-json"
	case FileTypeXML:
		return "language-xml"
	default:
		return "language-text"
	}
}

// CloneFiles returns a copy of files that shares no backing array.
func CloneFiles(files []File) []File {
	if files == nil {
		return nil
	}
	return append([]File(nil), files...)
}
