package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var LocalesFS embed.FS

// DefaultLang is used when a request names no supported language.
const DefaultLang = "es"

type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args. Unknown keys echo back.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// Bundle holds one Translator per supported language.
type Bundle struct {
	byLang map[string]*Translator
}

// NewBundle loads every language; the default language must be among them.
func NewBundle(fsys fs.FS, langs ...string) (*Bundle, error) {
	if len(langs) == 0 {
		langs = []string{DefaultLang, "en"}
	}
	b := &Bundle{byLang: make(map[string]*Translator, len(langs))}
	for _, l := range langs {
		t, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		b.byLang[l] = t
	}
	if _, ok := b.byLang[DefaultLang]; !ok {
		return nil, fmt.Errorf("default language %q not loaded", DefaultLang)
	}
	return b, nil
}

// MustDefaultBundle loads the embedded es and en locales.
func MustDefaultBundle() *Bundle {
	b, err := NewBundle(LocalesFS, DefaultLang, "en")
	if err != nil {
		panic(err)
	}
	return b
}

// Pick selects a translator from an Accept-Language header value. Quality
// weights are ignored; the first supported primary tag wins.
func (b *Bundle) Pick(acceptLanguage string) *Translator {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		primary := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if t, ok := b.byLang[primary]; ok {
			return t
		}
	}
	return b.byLang[DefaultLang]
}
