package pathstore

import (
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "clean absolute", input: tmpDir, want: tmpDir},
		{name: "trailing separator", input: tmpDir + string(filepath.Separator), want: tmpDir},
		{name: "dot segments", input: filepath.Join(tmpDir, "a", "..", "b"), want: filepath.Join(tmpDir, "b")},
		{name: "nfd input", input: filepath.Join(tmpDir, "cafe\u0301"), want: filepath.Join(tmpDir, "caf\u00e9")},
		{name: "empty", input: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		input string
		want  string
	}{
		{input: "~", want: home},
		{input: "~/projects", want: filepath.Join(home, "projects")},
		{input: "~user/projects", want: "~user/projects"},
		{input: "~~", want: "~~"},
		{input: "/abs/~/x", want: "/abs/~/x"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandHome(tt.input); got != tt.want {
				t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRel(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "r")

	tests := []struct {
		abs    string
		want   string
		wantOK bool
	}{
		{abs: root, want: "", wantOK: true},
		{abs: filepath.Join(root, "alpha"), want: "alpha", wantOK: true},
		{abs: filepath.Join(root, "beta", "alpha-nested"), want: "beta/alpha-nested", wantOK: true},
		{abs: filepath.Join(string(filepath.Separator), "other"), wantOK: false},
		{abs: filepath.Join(string(filepath.Separator), "rr"), wantOK: false},
	}

	for _, tt := range tests {
		got, ok := Rel(root, tt.abs)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Rel(%q) = %q, %v; want %q, %v", tt.abs, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParentAndBase(t *testing.T) {
	if got := Parent("beta/alpha-nested"); got != "beta" {
		t.Errorf("Parent() = %q, want beta", got)
	}
	if got := Parent("alpha"); got != "" {
		t.Errorf("Parent() = %q, want empty", got)
	}
	if got := Base("beta/alpha-nested"); got != "alpha-nested" {
		t.Errorf("Base() = %q, want alpha-nested", got)
	}
	if got := Join("", "alpha"); got != "alpha" {
		t.Errorf("Join() = %q, want alpha", got)
	}
}

func TestFoldAndWords(t *testing.T) {
	if got := Fold("Alpha-Two"); got != "alpha-two" {
		t.Errorf("Fold() = %q", got)
	}
	if got := Fold("ÉCOLE"); got != "école" {
		t.Errorf("Fold() = %q", got)
	}

	words := Words("my  old\tprojects")
	if len(words) != 3 || words[0] != "my" || words[2] != "projects" {
		t.Errorf("Words() = %v", words)
	}
	if len(Words("alpha-two_three.four")) != 1 {
		t.Error("Words() split on a non-whitespace separator")
	}
}

func TestHashStable(t *testing.T) {
	a := Hash("/r")
	if len(a) != 8 {
		t.Fatalf("Hash() length = %d, want 8", len(a))
	}
	if a != Hash("/r") {
		t.Error("Hash() not stable")
	}
	if a == Hash("/s") {
		t.Error("Hash() collided on distinct roots")
	}
}

func TestIntern(t *testing.T) {
	a := Intern(string([]byte("node_modules")))
	b := Intern(string([]byte("node_modules")))
	if a != b {
		t.Error("Intern() returned different values")
	}
}

func TestTreeSubtree(t *testing.T) {
	tree := NewTree()
	tree.Insert("", 0)
	tree.Insert("beta", 1)
	tree.Insert("beta/alpha-nested", 2)
	tree.Insert("betamax", 3)
	tree.Insert("beta/x/y", 4)

	got := tree.Subtree("beta")
	if len(got) != 3 {
		t.Fatalf("Subtree(beta) = %v, want 3 positions", got)
	}
	for _, pos := range got {
		if pos == 3 {
			t.Error("Subtree(beta) included sibling betamax")
		}
	}

	if all := tree.Subtree(""); len(all) != 5 {
		t.Errorf("Subtree(\"\") = %v, want 5 positions", all)
	}

	tree.Delete("beta/x/y")
	if _, ok := tree.Get("beta/x/y"); ok {
		t.Error("Get() found deleted path")
	}
	if tree.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tree.Len())
	}

	if !IsWithin("beta", "beta/alpha") || IsWithin("beta", "betamax") || !IsWithin("", "x") {
		t.Error("IsWithin() mismatch")
	}
}
