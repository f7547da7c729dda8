package extract

import (
	"strings"
	"testing"
)

func TestHTMLText(t *testing.T) {
	t.Run("flattens blocks to lines", func(t *testing.T) {
		in := `<div><p>Patient seen today.</p><p>Plan: <b>follow up</b> in two weeks.</p></div>`
		got, err := HTMLText(strings.NewReader(in))
		if err != nil {
			t.Fatalf("HTMLText: %v", err)
		}
		want := "Patient seen today.\nPlan: follow up in two weeks."
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("drops script and style content", func(t *testing.T) {
		in := `<html><head><style>p{color:red}</style></head><body><script>alert(1)</script><p>Visible</p></body></html>`
		got, err := HTMLText(strings.NewReader(in))
		if err != nil {
			t.Fatalf("HTMLText: %v", err)
		}
		if got != "Visible" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("table rows stay apart", func(t *testing.T) {
		in := `<table><tr><td>Name</td><td>Jane</td></tr><tr><td>DOB</td><td>1980</td></tr></table>`
		got, err := HTMLText(strings.NewReader(in))
		if err != nil {
			t.Fatalf("HTMLText: %v", err)
		}
		want := "Name Jane\nDOB 1980"
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := HTMLText(strings.NewReader(""))
		if err != nil {
			t.Fatalf("HTMLText: %v", err)
		}
		if got != "" {
			t.Fatalf("got %q", got)
		}
	})
}
