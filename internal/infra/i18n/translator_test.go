//go:build !integration

package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	// --- Arrange ---
	contentBytes := []byte("greeting: Hola\nwelcome_user: Hola %s")
	translator, err := newTranslatorFromBytes(contentBytes)
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	// --- Act / Assert ---
	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Hola" {
			t.Errorf("wanted 'Hola', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ana"); got != "Hola Ana" {
			t.Errorf("wanted 'Hola Ana', got '%s'", got)
		}
	})
}

func TestBundle(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/es.yaml": {Data: []byte("NOT_FOUND: No existe")},
		"locales/en.yaml": {Data: []byte("NOT_FOUND: Not found")},
	}
	b, err := NewBundle(fsys, "es", "en")
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}

	cases := map[string]string{
		"":                   "No existe",
		"en-US,en;q=0.9":     "Not found",
		"fr-FR, es-EC;q=0.8": "No existe",
		"de":                 "No existe",
		"EN":                 "Not found",
	}
	for header, want := range cases {
		t.Run("should pick for "+header, func(t *testing.T) {
			if got := b.Pick(header).T("NOT_FOUND"); got != want {
				t.Errorf("Pick(%q) = %q, want %q", header, got, want)
			}
		})
	}

	t.Run("should fail without the default language", func(t *testing.T) {
		if _, err := NewBundle(fsys, "en"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestEmbeddedLocalesCoverSameKeys(t *testing.T) {
	b := MustDefaultBundle()
	es, en := b.byLang["es"], b.byLang["en"]
	for k := range es.translations {
		if _, ok := en.translations[k]; !ok {
			t.Errorf("en locale misses %s", k)
		}
	}
	if !strings.Contains(es.T("INSUFFICIENT_CREDITS", 50, 10), "50") {
		t.Error("expected formatted insufficient-credits message")
	}
}
