// Package source loads the run's inputs: relay credential records,
// recipient lists and message bodies.
package source

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lattiq/bulkmail/internal/core"
)

// relayFields is the number of pipe-delimited fields a relay record needs:
// server|port|username|password|region.
const relayFields = 5

// LoadRelays reads relay credentials from a pipe-delimited file, one
// record per line. Blank lines and records with missing fields or an
// unparseable port are skipped. A file that yields no valid records is an
// error: no run is possible without relays.
func LoadRelays(path string) ([]core.Relay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening relay file: %w", err)
	}
	defer f.Close()

	var relays []core.Relay
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < relayFields {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		relays = append(relays, core.Relay{
			Host:     strings.TrimSpace(parts[0]),
			Port:     port,
			Username: strings.TrimSpace(parts[2]),
			Password: parts[3],
			Region:   strings.TrimSpace(parts[4]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading relay file: %w", err)
	}
	if len(relays) == 0 {
		return nil, fmt.Errorf("no valid relay records in %s", path)
	}
	return relays, nil
}

// LoadRecipients reads newline-delimited addresses, skipping blank lines.
// An empty list is not an error; the dispatcher completes immediately.
func LoadRecipients(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recipient file: %w", err)
	}
	defer f.Close()

	var recipients []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		recipients = append(recipients, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading recipient file: %w", err)
	}
	return recipients, nil
}

// LoadBody reads a message body file verbatim.
func LoadBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading message file: %w", err)
	}
	return string(data), nil
}
