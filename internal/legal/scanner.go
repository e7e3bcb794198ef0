// Package legal scans extracted legal filing text for mentions of case
// participants. The graph layer annotates its nodes with the results.
package legal

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/pkg/types"
)

// Files shorter than this after trimming are treated as failed extractions.
const minFileBytes = 20

// Scanner cross-references the legal corpus against per-person name
// patterns. Scan builds a complete index and swaps it in atomically; readers
// keep seeing the previous index while a scan runs.
type Scanner struct {
	baseDir  string
	cases    []config.LegalCase
	patterns map[string][]*regexp.Regexp
	log      *logrus.Entry

	mu        sync.RWMutex
	byPerson  map[string][]types.FileMention
	scannedAt time.Time
}

// NewScanner compiles the profile's name patterns. Every pattern must be a
// valid Go regular expression; matching is case-insensitive.
func NewScanner(baseDir string, profile config.LegalProfile) (*Scanner, error) {
	patterns := make(map[string][]*regexp.Regexp, len(profile.NamePatterns))
	for person, variants := range profile.NamePatterns {
		for _, v := range variants {
			re, err := regexp.Compile("(?i)" + v)
			if err != nil {
				return nil, fmt.Errorf("legal: bad name pattern %q for %s: %w", v, person, err)
			}
			patterns[person] = append(patterns[person], re)
		}
	}
	return &Scanner{
		baseDir:  baseDir,
		cases:    profile.Cases,
		patterns: patterns,
		log:      logrus.WithField("component", "legal"),
		byPerson: map[string][]types.FileMention{},
	}, nil
}

// Scan walks every case directory, counts name-pattern hits per file, and
// atomically replaces the in-memory index. Missing directories are not an
// error: a corpus can be partially present.
func (s *Scanner) Scan() error {
	start := time.Now()
	byPerson := map[string][]types.FileMention{}
	fileCount := 0

	for _, c := range s.cases {
		for path, display := range s.corpusFiles(c) {
			text, err := os.ReadFile(path)
			if err != nil {
				s.log.WithError(err).WithField("file", path).Warn("skipping unreadable corpus file")
				continue
			}
			if len(strings.TrimSpace(string(text))) < minFileBytes {
				continue
			}
			fileCount++

			for person, res := range s.patterns {
				mentions := 0
				for _, re := range res {
					mentions += len(re.FindAllIndex(text, -1))
				}
				if mentions > 0 {
					byPerson[person] = append(byPerson[person], types.FileMention{
						Filename: display,
						Case:     c.CaseID,
						CaseType: c.CaseType,
						Path:     path,
						Mentions: mentions,
					})
				}
			}
		}
	}

	for person := range byPerson {
		sort.Slice(byPerson[person], func(i, j int) bool {
			return byPerson[person][i].Mentions > byPerson[person][j].Mentions
		})
	}

	s.mu.Lock()
	s.byPerson = byPerson
	s.scannedAt = time.Now()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"files":   fileCount,
		"people":  len(byPerson),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("legal corpus scanned")
	return nil
}

// corpusFiles collects the .txt/.md files for one case, deduplicated by
// file stem: when the same filing appears in several directories, the first
// configured directory wins.
func (s *Scanner) corpusFiles(c config.LegalCase) map[string]string {
	seen := map[string]bool{}
	files := map[string]string{} // path -> display name

	for _, dir := range c.Dirs {
		root := filepath.Join(s.baseDir, dir)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".txt" && ext != ".md" {
				return nil
			}
			stem := strings.TrimSuffix(filepath.Base(path), ext)
			if seen[stem] {
				return nil
			}
			seen[stem] = true
			files[path] = strings.TrimSuffix(stem, "_analysis") + ext
			return nil
		})
	}
	return files
}

// Mentions returns one person's corpus hits, sorted by mention count
// descending. Unknown names yield an empty slice.
func (s *Scanner) Mentions(person string) []types.FileMention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.FileMention(nil), s.byPerson[person]...)
}

// ScannedAt reports when the current index was built; zero before the first
// Scan completes.
func (s *Scanner) ScannedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scannedAt
}
