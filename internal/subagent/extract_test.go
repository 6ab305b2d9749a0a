package subagent

import "testing"

func TestExtractToolCall_PlainJSON(t *testing.T) {
	ext := ExtractToolCall(`{"action": "read_file", "filename": "notes.txt"}`)
	if ext.Status != ExtractFound {
		t.Fatalf("status = %v, want found", ext.Status)
	}
	if ext.Call.Name != "read_file" {
		t.Errorf("name = %q", ext.Call.Name)
	}
	if ext.Call.Arguments["filename"] != "notes.txt" {
		t.Errorf("arguments = %v", ext.Call.Arguments)
	}
	if ext.Call.ID == "" {
		t.Error("expected a generated call id")
	}
}

func TestExtractToolCall_SurroundingProse(t *testing.T) {
	text := "I will check the file now.\n{\"tool\": \"read_file\", \"filename\": \"a.md\"}\nLet me know."
	ext := ExtractToolCall(text)
	if ext.Status != ExtractFound {
		t.Fatalf("status = %v, want found", ext.Status)
	}
	if ext.Call.Name != "read_file" {
		t.Errorf("name = %q", ext.Call.Name)
	}
}

func TestExtractToolCall_NameKeyPriority(t *testing.T) {
	ext := ExtractToolCall(`{"action": "list_dir", "name": "read_file", "path": "."}`)
	if ext.Status != ExtractFound {
		t.Fatalf("status = %v, want found", ext.Status)
	}
	if ext.Call.Name != "list_dir" {
		t.Errorf("name = %q, want action key to win", ext.Call.Name)
	}
}

func TestExtractToolCall_FilenameAliases(t *testing.T) {
	for _, alias := range []string{"file_path", "path"} {
		ext := ExtractToolCall(`{"action": "read_file", "` + alias + `": "x.go"}`)
		if ext.Status != ExtractFound {
			t.Fatalf("%s: status = %v, want found", alias, ext.Status)
		}
		if ext.Call.Arguments["filename"] != "x.go" {
			t.Errorf("%s: filename = %v", alias, ext.Call.Arguments["filename"])
		}
		if _, ok := ext.Call.Arguments[alias]; ok {
			t.Errorf("%s: alias key should be consumed", alias)
		}
	}
}

func TestExtractToolCall_FilenameNotOverwritten(t *testing.T) {
	ext := ExtractToolCall(`{"action": "read_file", "filename": "keep.txt", "path": "drop.txt"}`)
	if ext.Call.Arguments["filename"] != "keep.txt" {
		t.Errorf("filename = %v, want keep.txt", ext.Call.Arguments["filename"])
	}
}

func TestExtractToolCall_NameKeysExcludedFromArguments(t *testing.T) {
	ext := ExtractToolCall(`{"action": "search_files", "pattern": "*.go"}`)
	if _, ok := ext.Call.Arguments["action"]; ok {
		t.Error("action key should not appear in arguments")
	}
	if ext.Call.Arguments["pattern"] != "*.go" {
		t.Errorf("arguments = %v", ext.Call.Arguments)
	}
}

func TestExtractToolCall_NestedObjectArgument(t *testing.T) {
	ext := ExtractToolCall(`{"action": "search_files", "options": {"glob": "*.go", "max": 5}}`)
	if ext.Status != ExtractFound {
		t.Fatalf("status = %v, want found", ext.Status)
	}
	opts, ok := ext.Call.Arguments["options"].(map[string]any)
	if !ok || opts["glob"] != "*.go" {
		t.Errorf("arguments = %v, want nested object preserved", ext.Call.Arguments)
	}
}

func TestExtractToolCall_MultipleBracePairs(t *testing.T) {
	// First-{ to last-} spans both objects; the slice is not valid JSON, so
	// nothing is recovered rather than guessing which object was meant.
	text := `{"a": 1} then the call {"action": "read_file"}`
	if got := ExtractToolCall(text).Status; got != ExtractMalformed {
		t.Errorf("status = %v, want malformed", got)
	}
}

func TestExtractToolCall_NoBraces(t *testing.T) {
	for _, text := range []string{"all done, nothing to call", "", "closing } before opening {"} {
		if got := ExtractToolCall(text).Status; got != ExtractNotFound {
			t.Errorf("ExtractToolCall(%q).Status = %v, want not found", text, got)
		}
	}
}

func TestExtractToolCall_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid JSON":   `result: {"action": "read_file", }`,
		"non-object":     `the set {1, 2, 3} is small`,
		"no name key":    `{"filename": "a.txt"}`,
		"non-string key": `{"action": 7}`,
	}
	for label, text := range cases {
		if got := ExtractToolCall(text).Status; got != ExtractMalformed {
			t.Errorf("%s: status = %v, want malformed", label, got)
		}
	}
}
