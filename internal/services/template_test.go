package services

import "testing"

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Halo {{name}}, nomor {{phone}} terdaftar.", "Budi", "628123")
	want := "Halo Budi, nomor 628123 terdaftar."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderTemplateDefaultsName(t *testing.T) {
	got := RenderTemplate("Halo {{name}}!", "", "628123")
	if got != "Halo Customer!" {
		t.Errorf("got %q, want default name substitution", got)
	}
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	got := RenderTemplate("Terima kasih.", "Budi", "628123")
	if got != "Terima kasih." {
		t.Errorf("got %q, want unchanged template", got)
	}
}
