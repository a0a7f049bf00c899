package proofstore

import "testing"

func TestValidFileType(t *testing.T) {
	cases := []struct {
		contentType string
		filename    string
		want        bool
	}{
		{"image/png", "shot.png", true},
		{"IMAGE/PNG", "shot.png", true},
		{"", "report.PDF", true},
		{"application/octet-stream", "proof.jpeg", true},
		{"text/html", "index.html", false},
		{"", "archive.zip", false},
		{"video/mp4", "clip.mp4", false},
	}
	for _, tc := range cases {
		if got := ValidFileType(tc.contentType, tc.filename); got != tc.want {
			t.Errorf("ValidFileType(%q, %q) = %v, want %v", tc.contentType, tc.filename, got, tc.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey("01CAMP", "01PROOF", "Banner.PNG")
	want := "proofs/01CAMP/01PROOF.png"
	if got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
}

func TestContentTypeForFilename(t *testing.T) {
	if got := ContentTypeForFilename("a.webp"); got != "image/webp" {
		t.Fatalf("got %q", got)
	}
	if got := ContentTypeForFilename("a.bin"); got != "application/octet-stream" {
		t.Fatalf("got %q", got)
	}
}
