package gcp

import "testing"

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"u/documents/d/notes.PDF":  "application/pdf",
		"u/documents/d/essay.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"u/documents/d/readme.md":  "text/plain; charset=utf-8",
		"u/documents/d/blob":       "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}

func TestEmulatorMediaURLEscapesKey(t *testing.T) {
	got := emulatorMediaURL("http://fake-gcs:4443/", "materials", "u1/documents/d1/my file.pdf")
	want := "http://fake-gcs:4443/storage/v1/b/materials/o/u1%2Fdocuments%2Fd1%2Fmy%20file.pdf?alt=media"
	if got != want {
		t.Fatalf("emulatorMediaURL: want=%q got=%q", want, got)
	}
}
