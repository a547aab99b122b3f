package chessanalysis

import (
	"bufio"
	"bytes"
	"strings"

	_ "embed"
)

//go:embed openings.tsv
var openingData []byte

type openingEntry struct {
	fenPrefix string
	name      string
}

var openingTable = loadOpenings()

func loadOpenings() []openingEntry {
	var entries []openingEntry
	scanner := bufio.NewScanner(bytes.NewReader(openingData))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prefix, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		entries = append(entries, openingEntry{
			fenPrefix: strings.TrimSpace(prefix),
			name:      strings.TrimSpace(name),
		})
	}
	return entries
}

// LookupOpening matches a FEN against the embedded table of known
// theoretical positions. The first containment match wins; a miss returns
// false and leaves the position unnamed.
func LookupOpening(fen string) (string, bool) {
	for _, entry := range openingTable {
		if strings.Contains(fen, entry.fenPrefix) {
			return entry.name, true
		}
	}
	return "", false
}
