// backend/src/parsers/parsers.go
package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/capsim/backend/src/models"
	"github.com/username/capsim/backend/src/parsers/captable"
)

// Parser converts an uploaded workbook into a project's stakeholders and
// transactions. Implementations regenerate all internal ids on import.
type Parser interface {
	Parse(file io.Reader) (*models.ImportedProject, error)
}

// GetParser returns the parser registered for the given workbook format.
func GetParser(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "captable", "csv":
		return captable.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported import format: %s", format)
	}
}
