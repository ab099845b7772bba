package credentials

import (
	"bufio"
	"io"
	"strings"

	"github.com/marmos91/vcalc/internal/logger"
)

// maxLineLength bounds a single credential record.
const maxLineLength = 64 << 10

// Parse reads newline-delimited login:secret records.
//
// Blank lines and lines whose first non-blank character is '#' are skipped.
// The first ':' splits login from secret, so secrets may contain colons.
// Both fields are whitespace-trimmed. Lines without a colon or with an empty
// login are skipped. When a login repeats, the last record wins.
func Parse(r io.Reader, log *logger.Logger) (Table, error) {
	table := make(Table)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		login, secret, found := strings.Cut(line, ":")
		if !found {
			log.Debug("Skipping credential line without delimiter", logger.KeyLine, lineNo)
			continue
		}

		login = strings.TrimSpace(login)
		if login == "" {
			log.Debug("Skipping credential line with empty login", logger.KeyLine, lineNo)
			continue
		}

		if _, dup := table[login]; dup {
			log.Debug("Duplicate login, later record wins", logger.KeyLogin, login, logger.KeyLine, lineNo)
		}
		table[login] = strings.TrimSpace(secret)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
