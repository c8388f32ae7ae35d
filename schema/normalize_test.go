package schema

import "testing"

func TestValidateWorkspaceID(t *testing.T) {
	cases := []struct {
		name      string
		workspace WorkspaceID
		valid     bool
	}{
		{"simple", "local", true},
		{"token", "Zm9vYmFy_-09", true},
		{"empty", "", false},
		{"space", "a b", false},
		{"leading-space", " local", false},
		{"unicode", "Ã¥", false},
		{"symbol", "ws@1", false},
		{"slash", "a/b", false},
	}

	for _, tc := range cases {
		err := ValidateWorkspaceID(tc.workspace)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeFileType(t *testing.T) {
	cases := map[string]FileType{
		"":       FileTypeJava,
		"  ":     FileTypeJava,
		"JSON":   FileTypeJSON,
		" xml ":  FileTypeXML,
		"kotlin": "kotlin",
	}
	for input, want := range cases {
		if got := NormalizeFileType(input); got != want {
			t.Fatalf("NormalizeFileType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestLanguageClass(t *testing.T) {
	cases := map[FileType]string{
		"java":  "language-java",
		"JSON":  "language-json",
		"xml":   "language-xml",
		"txt":   "language-text",
		"yaml":  "language-text",
		"":      "language-java",
	}
	for input, want := range cases {
		if got := LanguageClass(input); got != want {
			t.Fatalf("LanguageClass(%q) = %q, want %q", input, got, want)
		}
	}
}
