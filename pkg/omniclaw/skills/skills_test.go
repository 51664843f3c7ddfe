package skills

import (
	"path/filepath"
	"testing"
)

func TestCreateGetDelete(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "custom_skills.json"), nil)

	skill, err := s.Create("Code Reviewer", "Review code changes critically.")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if skill.ID != "code_reviewer" {
		t.Fatalf("id = %q", skill.ID)
	}
	if got := s.Prompt("code_reviewer"); got != "Review code changes critically." {
		t.Fatalf("Prompt = %q", got)
	}

	if _, err := s.Create("code reviewer", "dup"); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if _, err := s.Create("", "p"); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := s.Create("x", "  "); err == nil {
		t.Fatal("empty prompt accepted")
	}

	if err := s.Delete("code_reviewer"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("code_reviewer"); err == nil {
		t.Fatal("double delete did not error")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom_skills.json")
	first := NewStore(path, nil)
	if _, err := first.Create("writer", "Write prose."); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Create("analyst", "Analyze data."); err != nil {
		t.Fatal(err)
	}

	second := NewStore(path, nil)
	list := second.List()
	if len(list) != 2 {
		t.Fatalf("loaded %d skills, want 2", len(list))
	}
	// List is sorted by name.
	if list[0].Name != "analyst" || list[1].Name != "writer" {
		t.Fatalf("order = %s, %s", list[0].Name, list[1].Name)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "nope.json"), nil)
	if got := s.List(); len(got) != 0 {
		t.Fatalf("List = %v", got)
	}
	if got := s.Prompt("absent"); got != "" {
		t.Fatalf("Prompt = %q", got)
	}
}
