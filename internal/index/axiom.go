package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// Bulk extraction files carry no per-record framing we can count without
// decoding, so the indexed record count is a size-based estimate.
const axiomBytesPerRecord = 500

// axiomExtraction is one bulk-JSON extraction directory.
type axiomExtraction struct {
	ID         string // directory name
	Suffix     string // part after the case-number prefix
	Categories map[types.Category]int
	Total      int
}

// axiomSource serves the bulk-JSON export family. Directory listings are
// scanned eagerly for size estimates; category files are multi-gigabyte and
// only decoded on demand, behind a per-file circuit breaker so a corrupt or
// unreadable file is not re-decoded on every query. scan builds a complete
// index and swaps it in under idxMu; readers keep seeing the previous index
// while a scan runs.
type axiomSource struct {
	dir string
	log *logrus.Entry

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	idxMu       sync.RWMutex
	extractions map[string]*axiomExtraction // by directory name
	composites  map[string][]string         // composite device ID -> extraction dirs
}

func newAxiomSource(dir string) *axiomSource {
	return &axiomSource{
		dir:      dir,
		log:      logrus.WithField("component", "axiom"),
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// caseNumber returns the case-number prefix of an extraction directory name:
// everything before the first underscore or space.
func caseNumber(dirname string) string {
	if i := strings.IndexAny(dirname, "_ "); i > 0 {
		return dirname[:i]
	}
	return dirname
}

// scan walks the bulk directory and rebuilds the extraction index. A missing
// directory is zero extractions, not an error.
func (a *axiomSource) scan() error {
	extractions := map[string]*axiomExtraction{}
	composites := map[string][]string{}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			a.swap(extractions, composites)
			return nil
		}
		return fmt.Errorf("index: failed to read bulk export dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := &axiomExtraction{ID: name, Categories: map[types.Category]int{}}

		prefix := caseNumber(name)
		if suffix := strings.TrimLeft(strings.TrimPrefix(name, prefix), "_ "); suffix != "" {
			ext.Suffix = suffix
		}

		files, err := filepath.Glob(filepath.Join(a.dir, name, "*.json"))
		if err != nil {
			continue
		}
		for _, f := range files {
			fi, err := os.Stat(f)
			if err != nil {
				continue
			}
			stem := strings.TrimSuffix(filepath.Base(f), ".json")
			cat := types.Category(stem)
			if !cat.Valid() {
				continue
			}
			estimate := int(fi.Size()) / axiomBytesPerRecord
			if estimate < 1 {
				estimate = 1
			}
			ext.Categories[cat] = estimate
			ext.Total += estimate
		}

		extractions[name] = ext
		composites[prefix] = append(composites[prefix], name)
	}
	for _, dirs := range composites {
		sort.Strings(dirs)
	}

	a.swap(extractions, composites)
	return nil
}

func (a *axiomSource) swap(extractions map[string]*axiomExtraction, composites map[string][]string) {
	a.idxMu.Lock()
	a.extractions = extractions
	a.composites = composites
	a.idxMu.Unlock()
}

// devices returns the presentation-level device list: extractions sharing a
// case-number prefix collapse into one composite device whose counts are the
// sum over its extractions. Records stay per-extraction; only counts and
// query results merge.
func (a *axiomSource) devices(owners map[string]config.DeviceInfo) []types.Device {
	a.idxMu.RLock()
	defer a.idxMu.RUnlock()

	var out []types.Device
	for _, prefix := range sortedKeys(a.composites) {
		dirs := a.composites[prefix]

		if len(dirs) == 1 {
			out = append(out, a.singleDevice(dirs[0], owners))
			continue
		}

		dev := types.Device{
			ID:         prefix,
			Name:       prefix,
			Type:       "Multiple extractions",
			Owner:      "Unknown",
			Source:     types.SourceAxiom,
			Categories: map[types.Category]int{},
			Merged:     true,
		}
		for _, dir := range dirs {
			ext := a.extractions[dir]
			info, known := owners[dir]
			if known && dev.Owner == "Unknown" {
				dev.Owner = info.Owner
				dev.Name = info.Owner + " (" + prefix + ")"
				dev.Type = info.Type
			}
			for cat, n := range ext.Categories {
				dev.Categories[cat] += n
			}
			dev.TotalRecords += ext.Total
			dev.Extractions = append(dev.Extractions, types.Extraction{
				ID:           ext.ID,
				Source:       types.SourceAxiom,
				Suffix:       ext.Suffix,
				TotalRecords: ext.Total,
			})
		}
		out = append(out, dev)
	}
	return out
}

func (a *axiomSource) singleDevice(dir string, owners map[string]config.DeviceInfo) types.Device {
	ext := a.extractions[dir]
	dev := types.Device{
		ID:           dir,
		Name:         dir,
		Type:         dir,
		Owner:        "Unknown",
		Source:       types.SourceAxiom,
		Categories:   map[types.Category]int{},
		TotalRecords: ext.Total,
	}
	if info, ok := owners[dir]; ok {
		dev.Owner = info.Owner
		dev.Type = info.Type
	}
	for cat, n := range ext.Categories {
		dev.Categories[cat] = n
	}
	return dev
}

// resolve maps a queried device ID to its extraction directories. Unknown
// IDs resolve to nothing.
func (a *axiomSource) resolve(deviceID string) []string {
	a.idxMu.RLock()
	defer a.idxMu.RUnlock()

	if dirs, ok := a.composites[deviceID]; ok {
		return dirs
	}
	if _, ok := a.extractions[deviceID]; ok {
		return []string{deviceID}
	}
	return nil
}

// knows reports whether deviceID names an extraction or composite.
func (a *axiomSource) knows(deviceID string) bool {
	return len(a.resolve(deviceID)) > 0
}

// query serves device data for the bulk family. Without a category it
// returns the per-category estimate summary; with one it lazily decodes the
// category file from every underlying extraction, tagging each record with
// its originating extraction when the device is a composite.
func (a *axiomSource) query(deviceID string, opts storage.QueryOptions) (*storage.PaginatedResult[storage.RecordHit], error) {
	opts.Normalize()
	dirs := a.resolve(deviceID)
	if len(dirs) == 0 {
		return &storage.PaginatedResult[storage.RecordHit]{
			Items: []storage.RecordHit{}, Page: opts.Page, PerPage: opts.PerPage,
		}, nil
	}

	var hits []storage.RecordHit

	if opts.Category == "" {
		totals := map[types.Category]int{}
		a.idxMu.RLock()
		for _, dir := range dirs {
			for cat, n := range a.extractions[dir].Categories {
				totals[cat] += n
			}
		}
		a.idxMu.RUnlock()
		for _, cat := range types.Categories {
			if totals[cat] > 0 {
				hits = append(hits, storage.RecordHit{
					DeviceID: deviceID,
					Category: cat,
					Data:     map[string]any{"record_count": totals[cat]},
				})
			}
		}
	} else {
		tagged := len(dirs) > 1
		needle := strings.ToLower(opts.Query)
		for _, dir := range dirs {
			records, err := a.load(dir, opts.Category)
			if err != nil {
				a.log.WithError(err).WithField("extraction", dir).Warn("bulk category load failed")
				continue
			}
			for _, rec := range records {
				if needle != "" {
					raw, err := json.Marshal(rec)
					if err != nil || !strings.Contains(strings.ToLower(string(raw)), needle) {
						continue
					}
				}
				data, ok := rec.(map[string]any)
				if !ok {
					data = map[string]any{"value": rec}
				}
				if tagged {
					data["_extraction"] = dir
				}
				hits = append(hits, storage.RecordHit{
					DeviceID: deviceID,
					Category: opts.Category,
					Data:     data,
				})
			}
		}
	}

	total := len(hits)
	start := storage.Offset(opts.Page, opts.PerPage)
	if start > total {
		start = total
	}
	end := start + opts.PerPage
	if end > total {
		end = total
	}
	return &storage.PaginatedResult[storage.RecordHit]{
		Items:   hits[start:end],
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
	}, nil
}

// load decodes one extraction's category file through its circuit breaker.
func (a *axiomSource) load(dir string, category types.Category) ([]any, error) {
	path := filepath.Join(a.dir, dir, category.String()+".json")

	out, err := a.breaker(path).Execute(func() (any, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return []any{}, nil
			}
			return nil, err
		}
		var records []any
		if err := json.Unmarshal(raw, &records); err != nil {
			var single any
			if err2 := json.Unmarshal(raw, &single); err2 != nil {
				return nil, err
			}
			records = []any{single}
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]any), nil
}

func (a *axiomSource) breaker(path string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	cb, ok := a.breakers[path]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        path,
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		a.breakers[path] = cb
	}
	return cb
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
