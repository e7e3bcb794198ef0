package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/internal/storage/sqlite"
	"github.com/scrypster/casefile/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureProfile() *config.CaseProfile {
	return &config.CaseProfile{
		Devices: map[string]config.DeviceInfo{
			"dev-a": {Name: "Device A", Type: "iPhone", Owner: "Alice Adams"},
			"dev-b": {Name: "Device B", Type: "Phone", Owner: "Bob Brown"},
		},
		BulkDevices: map[string]config.DeviceInfo{
			"RMR100_iPhone":      {Owner: "Carol Cruz", Type: "iPhone"},
			"RMR100_iPhone_Dupe": {Owner: "Carol Cruz", Type: "iPhone (duplicate)"},
			"RMR200_Laptop":      {Owner: "Unknown", Type: "Laptop"},
		},
		Participants: []config.Participant{
			{Name: "Alice Adams", Role: "custodian", Devices: []string{"dev-a"}},
			{Name: "Bob Brown", Role: "clerk", Devices: []string{"dev-b"}},
		},
		KeywordTiers:  map[string]int{"trusted build": 3, "MCUA": 2},
		CriticalDates: map[string]config.CriticalDate{"2021-08-11": {Label: "Second Scan Day", Flames: 3}},
		KeyPeople:     []string{"Alice"},
	}
}

type fixture struct {
	ix    *Indexer
	store storage.RecordStore
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "cellebrite", "dev-a_chats.md"), ""+
		"### Chat: Signal\n"+
		"**Started:** 2021-08-06\n"+
		"- [2021-08-06T21:07:24+00:00] **Wendi**: Added to MCUA group (Signal)\n"+
		"- [2021-08-11T09:00:00+00:00] **Bob Brown**: trusted build prep today (Signal)\n")
	writeFile(t, filepath.Join(dir, "cellebrite", "dev-a_contacts.md"), ""+
		"- **John Smith** | Source: phone\n"+
		"- **Bob Brown** | Source: phone\n")
	writeFile(t, filepath.Join(dir, "cellebrite", "dev-b_contacts.md"), ""+
		"- **John Smith** | Source: whatsapp\n")

	writeFile(t, filepath.Join(dir, "axiom", "RMR100_iPhone", "chats.json"),
		`[{"sender":"carol","body":"meeting at noon"}]`)
	writeFile(t, filepath.Join(dir, "axiom", "RMR100_iPhone_Dupe", "chats.json"),
		`[{"sender":"carol","body":"meeting moved"}]`)
	writeFile(t, filepath.Join(dir, "axiom", "RMR200_Laptop", "browsing.json"),
		`[{"url":"https://example.com"}]`)

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ix, err := New(config.SourcesConfig{
		CellebriteDir: filepath.Join(dir, "cellebrite"),
		AxiomDir:      filepath.Join(dir, "axiom"),
	}, fixtureProfile(), store, nil)
	require.NoError(t, err)

	return &fixture{ix: ix, store: store, dir: dir}
}

func TestFullIndexBuildsCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ix.FullIndex(ctx))

	stats := f.ix.Stats()
	assert.Equal(t, 2, stats.CellebriteDevices)
	assert.Equal(t, 2, stats.AxiomDevices, "two extractions sharing a prefix merge into one device")
	assert.Equal(t, 4, stats.TotalDevices)
	assert.Equal(t, 2, stats.Categories["chats"])
	assert.Equal(t, 3, stats.Categories["contacts"])
	assert.Positive(t, stats.Categories["axiom_records"])
	assert.Positive(t, stats.LastIndexed)

	byID := map[string]types.Device{}
	for _, d := range f.ix.Devices() {
		byID[d.ID] = d
	}

	devA := byID["dev-a"]
	assert.Equal(t, "Alice Adams", devA.Owner)
	assert.Equal(t, 2, devA.Categories[types.CategoryChats])
	assert.Equal(t, 4, devA.TotalRecords)

	composite := byID["RMR100"]
	require.True(t, composite.Merged)
	assert.Equal(t, "Carol Cruz", composite.Owner)
	require.Len(t, composite.Extractions, 2)
	assert.Equal(t, "RMR100_iPhone", composite.Extractions[0].ID)
	assert.Equal(t, "iPhone_Dupe", composite.Extractions[1].Suffix)

	single := byID["RMR200_Laptop"]
	assert.False(t, single.Merged)
	assert.Equal(t, types.SourceAxiom, single.Source)
}

func TestDeviceDataRoutesByFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ix.FullIndex(ctx))

	res, err := f.ix.DeviceData(ctx, "dev-a", storage.QueryOptions{Category: types.CategoryChats})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	// Composite without a category returns per-category estimates.
	res, err = f.ix.DeviceData(ctx, "RMR100", storage.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, types.CategoryChats, res.Items[0].Category)
	assert.Equal(t, 2, res.Items[0].Data["record_count"])

	// Composite with a category decodes both extractions and tags records.
	res, err = f.ix.DeviceData(ctx, "RMR100", storage.QueryOptions{Category: types.CategoryChats})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	tags := map[any]bool{}
	for _, hit := range res.Items {
		tags[hit.Data["_extraction"]] = true
	}
	assert.True(t, tags["RMR100_iPhone"])
	assert.True(t, tags["RMR100_iPhone_Dupe"])

	res, err = f.ix.DeviceData(ctx, "RMR100", storage.QueryOptions{Category: types.CategoryChats, Query: "moved"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total, "substring filter applies to the raw JSON")

	res, err = f.ix.DeviceData(ctx, "no-such-device", storage.QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)
}

func TestIndexDerivesGraphAndDiscoveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ix.FullIndex(ctx))

	network := f.ix.Network()
	names := map[string]types.Node{}
	for _, n := range network.Nodes {
		names[n.Name] = n
	}
	require.Contains(t, names, "John Smith", "contact on two owners promotes a secondary node")
	assert.Equal(t, types.NodeSecondary, names["John Smith"].Type)
	assert.Equal(t, 1, names["Bob Brown"].ContactCount)

	details, ok := f.ix.PersonDetails(names["John Smith"].ID)
	require.True(t, ok)
	assert.Equal(t, 2, details.TotalConnections)
	_, ok = f.ix.PersonDetails("ffffffffffff")
	assert.False(t, ok)

	res, err := f.ix.Discoveries(ctx, storage.DiscoveryOptions{})
	require.NoError(t, err)
	require.Positive(t, res.Total)

	var sawKeyword, sawDate bool
	for _, d := range res.Items {
		if d.Title == "Alice Adams: Message mentioning trusted build" {
			sawKeyword = true
			assert.Equal(t, 3, d.Flames)
		}
		if d.Title == "Alice Adams: Message on Second Scan Day (2021-08-11)" {
			sawDate = true
		}
	}
	assert.True(t, sawKeyword)
	assert.True(t, sawDate)

	counts := f.ix.DiscoveryCategoryCounts()
	assert.Positive(t, counts[types.DiscoveryCommunications])
}

func TestRefreshIsIdempotentOnUnchangedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ix.FullIndex(ctx))

	before, err := f.ix.DeviceData(ctx, "dev-a", storage.QueryOptions{})
	require.NoError(t, err)

	res, err := f.ix.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, res.ChangedFiles)
	assert.GreaterOrEqual(t, res.ElapsedSeconds, 0.0)

	after, err := f.ix.DeviceData(ctx, "dev-a", storage.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, before.Total, after.Total)
}

func TestRefreshReplacesChangedPartitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ix.FullIndex(ctx))

	path := filepath.Join(f.dir, "cellebrite", "dev-b_contacts.md")
	writeFile(t, path, "- **John Smith** | Source: whatsapp\n- **New Person** | Source: phone\n")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	res, err := f.ix.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChangedFiles)

	data, err := f.ix.DeviceData(ctx, "dev-b", storage.QueryOptions{Category: types.CategoryContacts, Query: "new person"})
	require.NoError(t, err)
	assert.Equal(t, 1, data.Total)
}

func TestBulkScanConcurrentWithQueries(t *testing.T) {
	f := newFixture(t)
	ax := newAxiomSource(filepath.Join(f.dir, "axiom"))
	require.NoError(t, ax.scan())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				if err := ax.scan(); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()

	owners := fixtureProfile().BulkDevices
	for i := 0; i < 200; i++ {
		assert.True(t, ax.knows("RMR100"))
		res, err := ax.query("RMR100", storage.QueryOptions{})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Items)
		assert.NotEmpty(t, ax.devices(owners))
	}
	close(done)
	wg.Wait()
}
