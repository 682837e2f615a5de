package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"erp-rules/internal/metadata"
)

// LoadRuleFile reads rules from a YAML or JSON file. The document is either
// a list of rules or an object with a "rules" list.
func LoadRuleFile(path string) ([]*metadata.Rule, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	if m, ok := doc.(map[string]any); ok {
		list, found := m["rules"]
		if !found {
			return nil, fmt.Errorf("%s: expected a list of rules or a \"rules\" key", path)
		}
		doc = list
	}

	var rules []*metadata.Rule
	if err := reencode(doc, &rules); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// LoadDataFile reads a form data object from a YAML or JSON file.
func LoadDataFile(path string) (map[string]any, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := reencode(doc, &data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func readDocument(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// reencode passes a decoded document through JSON so YAML files land on the
// same struct tags and number types as API payloads.
func reencode(doc any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
