// Package index drives the ingestion pipeline: it parses both evidence
// source trees into the record store, rebuilds the relationship graph and
// the discovery set, and serves the derived caches behind an atomic swap so
// queries never observe a partial rebuild.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/discovery"
	"github.com/scrypster/casefile/internal/graph"
	"github.com/scrypster/casefile/internal/parser"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// LegalSource is the legal-corpus cross-reference consumed during a pass.
type LegalSource interface {
	Scan() error
	Mentions(person string) []types.FileMention
}

// RefreshResult summarizes one refresh pass.
type RefreshResult struct {
	ChangedFiles   int     `json:"changed_file_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Indexer owns the full pipeline. All public query methods are safe for
// concurrent use with a running pass: caches are replaced wholesale under
// the lock, and record queries go through the store's partition-swap
// semantics.
type Indexer struct {
	sources config.SourcesConfig
	profile *config.CaseProfile
	store   storage.RecordStore
	engine  *discovery.Engine
	legal   LegalSource // may be nil
	axiom   *axiomSource
	log     *logrus.Entry

	group singleflight.Group

	mu          sync.RWMutex
	devices     []types.Device
	stats       types.Stats
	discCounts  map[string]int
	network     *types.Network
	lastIndexed time.Time
}

// New assembles an Indexer. legal may be nil when no corpus is configured.
func New(sources config.SourcesConfig, profile *config.CaseProfile, store storage.RecordStore, legal LegalSource) (*Indexer, error) {
	engine, err := discovery.NewEngine(profile)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		sources:    sources,
		profile:    profile,
		store:      store,
		engine:     engine,
		legal:      legal,
		axiom:      newAxiomSource(sources.AxiomDir),
		log:        logrus.WithField("component", "index"),
		discCounts: map[string]int{},
		network:    &types.Network{},
	}, nil
}

// FullIndex parses every source file regardless of recorded state. Run once
// at startup before serving queries.
func (ix *Indexer) FullIndex(ctx context.Context) error {
	_, err := ix.Refresh(ctx, true)
	return err
}

// Refresh runs an incremental pass: only line-oriented files whose
// modification time changed since the last pass have their partitions
// replaced, but the graph and discovery sets are always recomputed
// wholesale. Concurrent calls coalesce into a single in-flight pass.
func (ix *Indexer) Refresh(ctx context.Context, full bool) (RefreshResult, error) {
	v, err, _ := ix.group.Do("refresh", func() (any, error) {
		return ix.pass(ctx, full)
	})
	if err != nil {
		return RefreshResult{}, err
	}
	return v.(RefreshResult), nil
}

// deviceParse is the in-memory result of parsing one device's files.
type deviceParse struct {
	deviceID string
	info     config.DeviceInfo
	records  []types.Record
	threads  []parser.Thread
	counts   map[types.Category]int
}

func (ix *Indexer) pass(ctx context.Context, full bool) (RefreshResult, error) {
	started := time.Now()
	runID := uuid.NewString()[:8]
	log := ix.log.WithField("run_id", runID)
	log.WithField("full", full).Info("index pass started")

	changed := 0
	var parsed []deviceParse

	for _, deviceID := range sortedKeys(ix.profile.Devices) {
		info := ix.profile.Devices[deviceID]
		dp := deviceParse{deviceID: deviceID, info: info, counts: map[types.Category]int{}}

		for _, cat := range types.Categories {
			path := filepath.Join(ix.sources.CellebriteDir, fmt.Sprintf("%s_%s.md", deviceID, cat))
			fi, err := os.Stat(path)
			if err != nil {
				continue
			}
			mtime := fi.ModTime().Unix()

			var records []types.Record
			for payload := range parser.Records(path, cat) {
				records = append(records, types.NewRecord(deviceID, cat, payload))
			}
			dp.records = append(dp.records, records...)
			dp.counts[cat] = len(records)

			var threads []parser.Thread
			if cat == types.CategoryChats {
				threads = parser.Threads(path)
				dp.threads = threads
			}

			prev, found, err := ix.store.FileState(ctx, path)
			if err != nil {
				return RefreshResult{}, err
			}
			if !full && found && prev == mtime {
				continue
			}

			if err := ix.store.ReplaceRecords(ctx, deviceID, cat, records); err != nil {
				log.WithError(err).WithFields(logrus.Fields{"device": deviceID, "category": cat}).Error("partition replace failed")
				continue
			}
			if cat == types.CategoryChats {
				if err := ix.replaceThreads(ctx, deviceID, threads); err != nil {
					log.WithError(err).WithField("device", deviceID).Error("thread replace failed")
				}
			}
			if err := ix.store.SetFileState(ctx, path, mtime, len(records)); err != nil {
				return RefreshResult{}, err
			}
			changed++
		}

		if err := ix.store.UpsertDevice(ctx, types.Device{
			ID:     deviceID,
			Name:   info.Name,
			Type:   info.Type,
			Owner:  info.Owner,
			Source: types.SourceCellebrite,
		}); err != nil {
			return RefreshResult{}, err
		}
		parsed = append(parsed, dp)
	}

	if err := ix.axiom.scan(); err != nil {
		log.WithError(err).Warn("bulk export scan failed")
	}
	axiomDevices := ix.axiom.devices(ix.profile.BulkDevices)
	for _, dev := range axiomDevices {
		if err := ix.store.UpsertDevice(ctx, dev); err != nil {
			return RefreshResult{}, err
		}
		for cat, n := range dev.Categories {
			if err := ix.store.SetCategoryCount(ctx, dev.ID, cat, n); err != nil {
				return RefreshResult{}, err
			}
		}
	}

	if ix.legal != nil {
		if err := ix.legal.Scan(); err != nil {
			log.WithError(err).Warn("legal corpus scan failed")
		}
	}

	network := ix.buildNetwork(parsed)

	var deviceRecords []discovery.DeviceRecords
	for _, dp := range parsed {
		deviceRecords = append(deviceRecords, discovery.DeviceRecords{
			DeviceID: dp.deviceID,
			Owner:    dp.info.Owner,
			Records:  dp.records,
		})
	}
	discoveries := ix.engine.Scan(deviceRecords)
	if err := ix.store.ReplaceDiscoveries(ctx, discoveries); err != nil {
		return RefreshResult{}, err
	}
	discCounts, err := ix.store.DiscoveryCategoryCounts(ctx)
	if err != nil {
		return RefreshResult{}, err
	}

	ix.swapCaches(parsed, axiomDevices, discCounts, network)

	elapsed := time.Since(started)
	log.WithFields(logrus.Fields{
		"changed_files": changed,
		"elapsed":       elapsed.Round(time.Millisecond).String(),
	}).Info("index pass complete")

	return RefreshResult{
		ChangedFiles:   changed,
		ElapsedSeconds: elapsed.Seconds(),
	}, nil
}

func (ix *Indexer) replaceThreads(ctx context.Context, deviceID string, threads []parser.Thread) error {
	summaries := make([]types.ChatThread, 0, len(threads))
	messages := make(map[int][]types.ChatMessage, len(threads))
	for i := range threads {
		summaries = append(summaries, threads[i].Summarize(deviceID))
		messages[threads[i].ID] = threads[i].Messages
	}
	return ix.store.ReplaceThreads(ctx, deviceID, summaries, messages)
}

// buildNetwork runs entity resolution over the parsed line-oriented data.
// The bulk family contributes nothing here: its records are not decoded
// during a pass.
func (ix *Indexer) buildNetwork(parsed []deviceParse) *types.Network {
	input := graph.Input{
		CallCounts:  map[string]int{},
		EmailCounts: map[string]int{},
	}
	for _, dp := range parsed {
		owner := dp.info.Owner
		for _, r := range dp.records {
			if c, ok := r.Payload.(types.Contact); ok {
				input.Contacts = append(input.Contacts, graph.ContactObservation{
					Name:        c.Name,
					SourceApp:   c.SourceApp,
					DeviceOwner: owner,
				})
			}
		}
		input.CallCounts[owner] += dp.counts[types.CategoryCalls]
		input.EmailCounts[owner] += dp.counts[types.CategoryEmails]

		for _, t := range dp.threads {
			input.Threads = append(input.Threads, graph.ThreadObservation{
				DeviceOwner:  owner,
				Platform:     t.SourceApp,
				Participants: t.Participants,
				MessageCount: len(t.Messages),
				Started:      t.Started,
			})
		}
	}

	var legal graph.MentionSource
	if ix.legal != nil {
		legal = ix.legal
	}
	return graph.NewBuilder(graph.NewResolver(ix.profile.Participants), legal).Build(input)
}

func (ix *Indexer) swapCaches(parsed []deviceParse, axiomDevices []types.Device, discCounts map[string]int, network *types.Network) {
	devices := make([]types.Device, 0, len(parsed)+len(axiomDevices))
	stats := types.Stats{
		CellebriteDevices: len(parsed),
		AxiomDevices:      len(axiomDevices),
		Categories:        map[string]int{},
	}

	for _, dp := range parsed {
		dev := types.Device{
			ID:         dp.deviceID,
			Name:       dp.info.Name,
			Type:       dp.info.Type,
			Owner:      dp.info.Owner,
			Source:     types.SourceCellebrite,
			Categories: map[types.Category]int{},
		}
		for cat, n := range dp.counts {
			dev.Categories[cat] = n
			dev.TotalRecords += n
			stats.Categories[cat.String()] += n
		}
		devices = append(devices, dev)
	}
	for _, dev := range axiomDevices {
		stats.Categories["axiom_records"] += dev.TotalRecords
		devices = append(devices, dev)
	}
	stats.TotalDevices = len(devices)

	now := time.Now()
	stats.LastIndexed = now.Unix()

	ix.mu.Lock()
	ix.devices = devices
	ix.stats = stats
	ix.discCounts = discCounts
	ix.network = network
	ix.lastIndexed = now
	ix.mu.Unlock()
}

// Stats returns the cached index summary.
func (ix *Indexer) Stats() types.Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stats
}

// Devices returns the cached device list, composites merged.
func (ix *Indexer) Devices() []types.Device {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.devices
}

// DiscoveryCategoryCounts returns the cached per-category discovery counts.
func (ix *Indexer) DiscoveryCategoryCounts() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.discCounts
}

// DeviceData queries one device's records. Line-oriented devices are served
// from the record store; bulk devices by lazy category-file load. An
// unknown device yields an empty page.
func (ix *Indexer) DeviceData(ctx context.Context, deviceID string, opts storage.QueryOptions) (*storage.PaginatedResult[storage.RecordHit], error) {
	if ix.axiom.knows(deviceID) {
		return ix.axiom.query(deviceID, opts)
	}
	opts.DeviceIDs = []string{deviceID}
	return ix.store.QueryRecords(ctx, opts)
}

// Search runs a global substring search across all stored records.
func (ix *Indexer) Search(ctx context.Context, opts storage.QueryOptions) (*storage.PaginatedResult[storage.RecordHit], error) {
	return ix.store.QueryRecords(ctx, opts)
}

// Threads lists one device's chat threads.
func (ix *Indexer) Threads(ctx context.Context, deviceID string, opts storage.ThreadOptions) (*storage.PaginatedResult[types.ChatThread], error) {
	opts.DeviceIDs = []string{deviceID}
	return ix.store.ListThreads(ctx, opts)
}

// ThreadMessages returns one thread's messages in order.
func (ix *Indexer) ThreadMessages(ctx context.Context, deviceID string, threadID int) ([]types.ChatMessage, error) {
	return ix.store.ThreadMessages(ctx, []string{deviceID}, threadID)
}

// Discoveries lists stored discoveries.
func (ix *Indexer) Discoveries(ctx context.Context, opts storage.DiscoveryOptions) (*storage.PaginatedResult[types.Discovery], error) {
	return ix.store.ListDiscoveries(ctx, opts)
}

// Network returns the cached relationship graph.
func (ix *Indexer) Network() *types.Network {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.network
}

// PersonDetails returns one graph node with its connections. Unknown IDs
// report ok=false.
func (ix *Indexer) PersonDetails(id string) (*types.PersonDetails, bool) {
	ix.mu.RLock()
	network := ix.network
	ix.mu.RUnlock()
	return graph.PersonDetails(network, id)
}
