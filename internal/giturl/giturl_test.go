package giturl

import "testing"

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://github.com/org/repo.git": true,
		"http://example.com/repo":         true,
		"ssh://git@example.com/repo.git":  true,
		"git://example.com/repo.git":      true,
		"git@github.com:org/repo.git":     true,
		"file:///tmp/repo":                true,
		"org/repo":                        false,
		"":                                false,
	}
	for in, want := range cases {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractRepoName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/org/repo.git": "repo",
		"https://github.com/org/repo":     "repo",
		"git@github.com:org/repo.git":     "repo",
		"ssh://git@host/path/to/repo.git": "repo",
		"git://host:9418":                 "",
		"https://github.com/org/":         "org",
	}
	for in, want := range cases {
		if got := ExtractRepoName(in); got != want {
			t.Errorf("ExtractRepoName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveAlias(t *testing.T) {
	if got := DeriveAlias("https://github.com/org/My-Repo.git"); got != "my-repo" {
		t.Errorf("DeriveAlias = %q, want %q", got, "my-repo")
	}
	if got := DeriveAlias("  "); got != "" {
		t.Errorf("DeriveAlias(whitespace) = %q, want empty", got)
	}
}
