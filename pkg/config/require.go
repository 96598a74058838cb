package config

import (
	"fmt"
	"sort"
	"strings"
)

// Require returns an error naming every env variable whose value is empty.
func Require(values map[string]string) error {
	var missing []string
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required env %s", strings.Join(missing, ", "))
}
