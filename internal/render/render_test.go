package render

import (
	"strings"
	"testing"

	"github.com/quillworks/loom/internal/model"
)

func sampleDoc() *model.CompiledDocument {
	return &model.CompiledDocument{
		Structural: model.Structural{
			Foreword:        "A word before we begin.",
			TableOfContents: "1. The Harbor\n2. The Gate",
		},
		Chapters: []model.Section{
			{Number: 1, Title: "The Harbor", Content: "The storm broke over the harbor."},
			{Number: 2, Content: "By dawn the ships were gone."},
		},
	}
}

func TestTextRender(t *testing.T) {
	data, err := (&Text{}).Render(sampleDoc(), Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := string(data)

	for _, want := range []string{
		"A word before we begin.",
		"1. The Harbor",
		"Chapter 1: The Harbor",
		"Chapter 2\n",
		"By dawn the ships were gone.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Chapter 2:") {
		t.Error("untitled chapter rendered with a colon")
	}
	if !strings.HasSuffix(got, "gone.\n") {
		t.Errorf("output not newline-terminated: %q", got[len(got)-12:])
	}
}

func TestMarkdownRender(t *testing.T) {
	data, err := (&Markdown{}).Render(sampleDoc(), Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := string(data)

	for _, want := range []string{
		"## Foreword",
		"## Contents",
		"# Chapter 1: The Harbor",
		"# Chapter 2\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "## Introduction") {
		t.Error("empty introduction rendered a heading")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	ren, err := r.For("TXT")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if ren.Format() != "txt" || ren.ContentType() != "text/plain; charset=utf-8" {
		t.Fatalf("renderer = %s %s", ren.Format(), ren.ContentType())
	}

	if _, err := r.For("pdf"); err == nil {
		t.Fatal("unknown format did not error")
	}

	got := r.Formats()
	want := []string{"markdown", "txt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Formats = %v", got)
	}
}

type fakePDF struct{}

func (fakePDF) Format() string      { return "pdf" }
func (fakePDF) ContentType() string { return "application/pdf" }
func (fakePDF) Render(*model.CompiledDocument, Options) ([]byte, error) {
	return []byte("%PDF-"), nil
}

func TestRegistryExtraRenderer(t *testing.T) {
	r := NewRegistry(fakePDF{})
	ren, err := r.For("pdf")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	data, _ := ren.Render(nil, Options{})
	if string(data) != "%PDF-" {
		t.Fatalf("data = %q", data)
	}
}
