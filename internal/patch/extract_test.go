package patch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const fooBody = "--- a/foo.txt\n+++ b/foo.txt\n@@ -1 +1 @@\n-old\n+new\n"

func TestExtractUnifiedDiffs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{
			name: "round trip",
			in:   "Here you go:\n```diff\n" + fooBody + "```\nthanks",
			want: map[string]string{"foo.txt": fooBody},
		},
		{
			name: "new file",
			in:   "```diff\n--- /dev/null\n+++ b/bar.txt\n@@ -0,0 +1 @@\n+hello\n```",
			want: map[string]string{"bar.txt": "--- /dev/null\n+++ b/bar.txt\n@@ -0,0 +1 @@\n+hello\n"},
		},
		{
			name: "case insensitive fence and missing trailing newline",
			in:   "```DIFF\n--- a/x/y.java\n+++ b/x/y.java\n@@ -1 +1 @@\n-a\n+b```",
			want: map[string]string{"x/y.java": "--- a/x/y.java\n+++ b/x/y.java\n@@ -1 +1 @@\n-a\n+b\n"},
		},
		{
			name: "headerless blocks get unique keys",
			in:   "```diff\n@@ -1 +1 @@\n-a\n+b\n```\n```diff\n@@ -2 +2 @@\n-c\n+d\n```",
			want: map[string]string{
				"patch.diff":   "@@ -1 +1 @@\n-a\n+b\n",
				"patch_2.diff": "@@ -2 +2 @@\n-c\n+d\n",
			},
		},
		{
			name: "prose only",
			in:   "I could not determine a fix.",
			want: map[string]string{},
		},
		{
			name: "non diff fences ignored",
			in:   "```java\nclass A {}\n```",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractUnifiedDiffs(tt.in).Map()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("extract mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractKeepsFirstAppearanceOrder(t *testing.T) {
	second := "--- a/foo.txt\n+++ b/foo.txt\n@@ -1 +1 @@\n-old\n+newer\n"
	in := "```diff\n" + fooBody + "```\n```diff\n--- a/bar.txt\n+++ b/bar.txt\n@@ -1 +1 @@\n-x\n+y\n```\n```diff\n" + second + "```"

	set := ExtractUnifiedDiffs(in)
	require.Equal(t, []string{"foo.txt", "bar.txt"}, set.Paths())
	require.Equal(t, second, set[0].Body)
	require.True(t, HasHunk(set[1].Body))
	require.False(t, set[1].Hunkless)
}

func TestExtractFlagsMissingHunk(t *testing.T) {
	set := ExtractUnifiedDiffs("```diff\n--- a/foo.txt\n+++ b/foo.txt\n-old\n+new\n```")
	require.Len(t, set, 1)
	require.Equal(t, "foo.txt", set[0].Path)
	require.True(t, set[0].Hunkless)
}

func TestExtractFullFiles(t *testing.T) {
	in := "```java\n// FILE: src/main/java/A.java\npackage a;\nclass A {}\n```\n" +
		"```yaml\n\n# FILE: specmatic.yaml\nsources: []\n```\n" +
		"```java\nclass NoHeader {}\n```\n" +
		"```json\n{\"k\": 1}\n// FILE: late.json\n```"

	got := ExtractFullFiles(in)
	want := []FullFile{
		{Path: "src/main/java/A.java", Body: "package a;\nclass A {}\n"},
		{Path: "specmatic.yaml", Body: "sources: []\n"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("full files mismatch (-want +got):\n%s", diff)
	}
}

func TestHasAnyCode(t *testing.T) {
	require.True(t, HasAnyCode("```diff\n"+fooBody+"```"))
	require.True(t, HasAnyCode("```java\n// FILE: A.java\nclass A {}\n```"))
	require.False(t, HasAnyCode("```java\nclass A {}\n```"))
	require.False(t, HasAnyCode("// FILE: A.java but no fence"))
	require.False(t, HasAnyCode(""))
	require.Empty(t, ExtractUnifiedDiffs(""))
}
