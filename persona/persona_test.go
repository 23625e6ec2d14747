package persona_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rapport-labs/rapport/persona"
)

func TestDefault_TotalOverLevels(t *testing.T) {
	table := persona.Default()

	if table.MaxLevel() != 4 {
		t.Fatalf("got max level %d, want 4", table.MaxLevel())
	}
	for level := 0; level <= table.MaxLevel(); level++ {
		text, err := table.Build(level)
		if err != nil {
			t.Errorf("Build(%d): %v", level, err)
		}
		if text == "" {
			t.Errorf("Build(%d) returned empty prompt", level)
		}
	}
}

func TestBuild_OutOfRange(t *testing.T) {
	table := persona.Default()

	for _, level := range []int{-1, 5, 100} {
		if _, err := table.Build(level); !errors.Is(err, persona.ErrLevelRange) {
			t.Errorf("Build(%d): got %v, want ErrLevelRange", level, err)
		}
	}
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		prompts []string
		wantErr bool
	}{
		{"single level", []string{"be nice"}, false},
		{"five levels", []string{"a", "b", "c", "d", "e"}, false},
		{"empty slice", nil, true},
		{"gap in middle", []string{"a", "", "c"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := persona.NewTable(tt.prompts)
			if (err != nil) != tt.wantErr {
				t.Errorf("got err %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSet_EditsExistingLevel(t *testing.T) {
	table := persona.Default()

	if err := table.Set(2, "custom warm persona"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	text, err := table.Build(2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if text != "custom warm persona" {
		t.Errorf("got %q, want %q", text, "custom warm persona")
	}
}

func TestSet_RejectsGaps(t *testing.T) {
	table := persona.Default()

	if err := table.Set(2, ""); !errors.Is(err, persona.ErrEmptyPrompt) {
		t.Errorf("empty text: got %v, want ErrEmptyPrompt", err)
	}
	if err := table.Set(9, "text"); !errors.Is(err, persona.ErrLevelRange) {
		t.Errorf("unknown level: got %v, want ErrLevelRange", err)
	}
}

func TestLoadPack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	content := `levels:
  - "level zero"
  - "level one"
  - "level two"
thresholds: [5, 10]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pack, err := persona.LoadPack(path)
	if err != nil {
		t.Fatalf("LoadPack: %v", err)
	}
	if len(pack.Levels) != 3 {
		t.Errorf("got %d levels, want 3", len(pack.Levels))
	}
	if len(pack.Thresholds) != 2 {
		t.Errorf("got %d thresholds, want 2", len(pack.Thresholds))
	}

	table, err := pack.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if table.MaxLevel() != 2 {
		t.Errorf("got max level %d, want 2", table.MaxLevel())
	}
}

func TestLoadPack_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"no levels", "thresholds: [5]\n"},
		{"blank level", "levels:\n  - \"a\"\n  - \"\"\nthresholds: [5]\n"},
		{"threshold count mismatch", "levels:\n  - \"a\"\n  - \"b\"\nthresholds: [5, 10]\n"},
		{"not yaml", ": : :\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := persona.LoadPack(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadPack_MissingFile(t *testing.T) {
	if _, err := persona.LoadPack(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
