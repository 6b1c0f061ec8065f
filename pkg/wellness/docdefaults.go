package wellness

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DocumentDefaults fill in document metadata the feed omits.
type DocumentDefaults struct {
	LOINC        string `yaml:"loinc"`
	DisplayTitle string `yaml:"display_title"`
	CategoryCode string `yaml:"category_code"`
}

func BuiltinDocumentDefaults() DocumentDefaults {
	return DocumentDefaults{
		LOINC:        "34133-9",
		DisplayTitle: "Wellness Summary",
		CategoryCode: "survey",
	}
}

// LoadDocumentDefaults reads defaults from a YAML file, falling back to the
// builtin wellness defaults when no path is configured.
func LoadDocumentDefaults(path string) (DocumentDefaults, error) {
	if path == "" {
		return BuiltinDocumentDefaults(), nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return BuiltinDocumentDefaults(), err
	}

	defaults := BuiltinDocumentDefaults()
	if err := yaml.Unmarshal(content, &defaults); err != nil {
		return BuiltinDocumentDefaults(), err
	}
	return defaults, nil
}
