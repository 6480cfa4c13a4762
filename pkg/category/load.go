package category

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadTable reads a category table from YAML. The document must be a sequence
// so that declaration order survives:
//
//	- label: Food & Dining
//	  keywords: [zomato, swiggy]
//	- label: Transport
//	  keywords: [uber]
func LoadTable(r io.Reader) (Table, error) {
	var table Table
	if err := yaml.NewDecoder(r).Decode(&table); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty category table")
		}
		return nil, fmt.Errorf("decoding category table: %w", err)
	}

	if err := validate(table); err != nil {
		return nil, err
	}

	for i := range table {
		table[i].Label = strings.TrimSpace(table[i].Label)
		for j, kw := range table[i].Keywords {
			table[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return table, nil
}

// LoadTableFile reads a category table from a YAML file.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening category table: %w", err)
	}
	defer f.Close()

	return LoadTable(f)
}

func validate(table Table) error {
	if len(table) == 0 {
		return errors.New("empty category table")
	}

	seen := make(map[string]struct{}, len(table))
	for i, c := range table {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return fmt.Errorf("category %d: empty label", i)
		}
		if label == Miscellaneous {
			return fmt.Errorf("category %d: %q is reserved", i, Miscellaneous)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("category %d: duplicate label %q", i, label)
		}
		seen[label] = struct{}{}

		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q: no keywords", label)
		}
		for _, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("category %q: empty keyword", label)
			}
		}
	}
	return nil
}
