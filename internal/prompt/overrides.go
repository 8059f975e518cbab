package prompt

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Overrides replaces the built-in prompt preambles. Empty fields keep
// the defaults. The diff override supports {{path}} and {{diff}}
// placeholders; the others are prepended to the generated body.
type Overrides struct {
	Diff        string `toml:"diff"`
	Commit      string `toml:"commit"`
	Comparison  string `toml:"comparison"`
	FileHistory string `toml:"file_history"`
	FileCompare string `toml:"file_compare"`
}

// LoadOverrides reads a prompt override file. A missing file is not an
// error and yields empty overrides.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overrides{}, nil
		}
		return nil, fmt.Errorf("reading prompt overrides: %w", err)
	}
	var overrides Overrides
	if err := toml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing prompt overrides %s: %w", path, err)
	}
	return &overrides, nil
}
