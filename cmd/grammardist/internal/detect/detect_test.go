package detect_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/detect"
	"github.com/albertocavalcante/grammardist/cmd/grammardist/internal/langs"
)

func TestComponents_Missing(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := detect.Components(tmpDir, "json", ".js")
	if err != nil {
		t.Fatalf("Components() error = %v", err)
	}
	if len(p.List()) != 0 {
		t.Errorf("Components() = %v, want empty", p.List())
	}
}

func TestComponents_All(t *testing.T) {
	tmpDir := t.TempDir()
	createFile(t, tmpDir, "json/lexer.js")
	createFile(t, tmpDir, "json/parser.js")
	createFile(t, tmpDir, "json/listener.js")
	createFile(t, tmpDir, "json/visitor.js")

	p, err := detect.Components(tmpDir, "json", ".js")
	if err != nil {
		t.Fatalf("Components() error = %v", err)
	}
	if diff := cmp.Diff(langs.Components, p.List()); diff != "" {
		t.Errorf("Components() mismatch (-want +got):\n%s", diff)
	}
}

func TestComponents_Partial(t *testing.T) {
	tmpDir := t.TempDir()
	createFile(t, tmpDir, "java/java/lexer.js")
	createFile(t, tmpDir, "java/java/parser.js")
	createFile(t, tmpDir, "java/java/parser.js.map") // not an artifact
	createFile(t, tmpDir, "java/java/README.md")
	if err := os.MkdirAll(filepath.Join(tmpDir, "java", "java", "visitor.js"), 0o755); err != nil {
		t.Fatal(err) // a directory is not an artifact
	}

	p, err := detect.Components(tmpDir, "java/java", ".js")
	if err != nil {
		t.Fatalf("Components() error = %v", err)
	}
	want := []langs.Component{langs.Lexer, langs.Parser}
	if diff := cmp.Diff(want, p.List()); diff != "" {
		t.Errorf("Components() mismatch (-want +got):\n%s", diff)
	}
	if p.Has(langs.Visitor) {
		t.Error("directory named visitor.js should not count")
	}
}

func TestComponents_OtherExtension(t *testing.T) {
	tmpDir := t.TempDir()
	createFile(t, tmpDir, "json/lexer.ts")

	p, err := detect.Components(tmpDir, "json", ".js")
	if err != nil {
		t.Fatal(err)
	}
	if p.Has(langs.Lexer) {
		t.Error("lexer.ts should not match .js")
	}
}

func TestComponents_Deterministic(t *testing.T) {
	tmpDir := t.TempDir()
	createFile(t, tmpDir, "csv/parser.js")
	createFile(t, tmpDir, "csv/lexer.js")

	first, err := detect.Components(tmpDir, "csv", ".js")
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := detect.Components(tmpDir, "csv", ".js")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Components() not deterministic (-first +again):\n%s", diff)
		}
	}
}

func createFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("// generated"), 0o644); err != nil {
		t.Fatal(err)
	}
}
