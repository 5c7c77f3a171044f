package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// parseVector accepts "1,2,3", "1 2 3" or a JSON array.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty vector")
	}
	if strings.HasPrefix(s, "[") {
		var v []float32
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("parsing vector %q: %w", s, err)
		}
		return v, nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	v := make([]float32, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %d %q: %w", i, f, err)
		}
		v[i] = float32(x)
	}
	return v, nil
}

// parseVectorArgs joins the arguments so "1 2 3" and "1,2,3" both work
// unquoted.
func parseVectorArgs(args []string) ([]float32, error) {
	return parseVector(strings.Join(args, " "))
}
