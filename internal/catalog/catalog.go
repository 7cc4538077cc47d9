// Package catalog loads the action list exported from the DAW and resolves
// human-readable action names to their addressable identifiers.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Catalog maps action names to identifiers. Lookup is exact and
// case-sensitive; when the same name appears in several contexts, the
// primary context wins and the first-seen entry elsewhere is the fallback.
type Catalog struct {
	primary  string
	entries  map[string]Entry
	contexts map[string]int
	skipped  int
}

// Entry is one resolved action: its identifier and the context it came from.
type Entry struct {
	ID      ActionID
	Name    string
	Context string
}

// Load reads an action dump: one action per line, three tab-separated
// fields: context, identifier, name. Malformed lines are counted and
// skipped, never fatal.
func Load(path, primaryContext string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f, primaryContext)
}

// Parse builds a Catalog from an action-dump stream.
func Parse(r io.Reader, primaryContext string) (*Catalog, error) {
	c := Empty(primaryContext)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			c.skipped++
			continue
		}
		context, id, name := parts[0], parts[1], parts[2]

		c.contexts[context]++
		// Primary context always wins; otherwise first-seen is kept.
		if _, seen := c.entries[name]; !seen || context == c.primary {
			c.entries[name] = Entry{
				ID:      ParseActionID(id),
				Name:    name,
				Context: context,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return c, nil
}

// Empty returns a catalog with no entries. Used when the dump file is
// missing so the process can still start; every resolution then fails.
func Empty(primaryContext string) *Catalog {
	return &Catalog{
		primary:  primaryContext,
		entries:  make(map[string]Entry),
		contexts: make(map[string]int),
	}
}

// Resolve looks up an action by exact name.
func (c *Catalog) Resolve(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Len returns the number of distinct action names.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Skipped returns the count of malformed lines dropped during parsing.
func (c *Catalog) Skipped() int {
	return c.skipped
}

// Contexts returns per-context line counts, including shadowed duplicates.
func (c *Catalog) Contexts() map[string]int {
	out := make(map[string]int, len(c.contexts))
	for k, v := range c.contexts {
		out[k] = v
	}
	return out
}

// PrimaryContext returns the context that wins name collisions.
func (c *Catalog) PrimaryContext() string {
	return c.primary
}
