package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. New applies
// the full Schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func chatRecord(deviceID, ts, sender, body string) types.Record {
	return types.NewRecord(deviceID, types.CategoryChats, types.ChatMessage{
		Time:   ts,
		Sender: sender,
		Body:   body,
	})
}

func TestReplaceRecordsSwapsPartition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []types.Record{
		chatRecord("device-1", "2021-08-01T10:00:00", "Alice", "first pass"),
		chatRecord("device-1", "2021-08-02T10:00:00", "Bob", "first pass"),
	}
	if err := store.ReplaceRecords(ctx, "device-1", types.CategoryChats, first); err != nil {
		t.Fatalf("ReplaceRecords() failed: %v", err)
	}

	second := []types.Record{
		chatRecord("device-1", "2021-08-03T10:00:00", "Alice", "second pass"),
	}
	if err := store.ReplaceRecords(ctx, "device-1", types.CategoryChats, second); err != nil {
		t.Fatalf("ReplaceRecords() on re-index failed: %v", err)
	}

	res, err := store.QueryRecords(ctx, storage.QueryOptions{DeviceIDs: []string{"device-1"}})
	if err != nil {
		t.Fatalf("QueryRecords() failed: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total: got %d, want 1 (old partition should be gone)", res.Total)
	}
	if got := res.Items[0].Data["body"]; got != "second pass" {
		t.Errorf("body: got %v, want %q", got, "second pass")
	}
}

func TestReplaceRecordsRejectsCategoryMismatch(t *testing.T) {
	store := newTestStore(t)

	records := []types.Record{chatRecord("device-1", "2021-08-01T10:00:00", "Alice", "hi")}
	err := store.ReplaceRecords(context.Background(), "device-1", types.CategoryCalls, records)
	if err == nil {
		t.Fatal("ReplaceRecords() accepted a record outside its partition")
	}
}

func TestQueryRecordsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := make([]types.Record, 0, 25)
	for i := 0; i < 25; i++ {
		ts := fmt.Sprintf("2021-08-%02dT10:00:00", i+1)
		records = append(records, chatRecord("device-1", ts, "Alice", fmt.Sprintf("message %d", i+1)))
	}
	if err := store.ReplaceRecords(ctx, "device-1", types.CategoryChats, records); err != nil {
		t.Fatalf("ReplaceRecords() failed: %v", err)
	}

	res, err := store.QueryRecords(ctx, storage.QueryOptions{Page: 2, PerPage: 10})
	if err != nil {
		t.Fatalf("QueryRecords() failed: %v", err)
	}
	if res.Total != 25 {
		t.Errorf("Total: got %d, want 25", res.Total)
	}
	if len(res.Items) != 10 {
		t.Fatalf("page size: got %d, want 10", len(res.Items))
	}
	// Newest first: page 2 starts at the 11th newest, Aug 15.
	if got := res.Items[0].Timestamp; got != "2021-08-15T10:00:00" {
		t.Errorf("first item on page 2: got %q, want 2021-08-15T10:00:00", got)
	}

	last, err := store.QueryRecords(ctx, storage.QueryOptions{Page: 3, PerPage: 10})
	if err != nil {
		t.Fatalf("QueryRecords() failed: %v", err)
	}
	if len(last.Items) != 5 {
		t.Errorf("last page size: got %d, want 5", len(last.Items))
	}
}

func TestQueryRecordsDateWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []types.Record{
		chatRecord("device-1", "2021-07-31T23:59:59", "Alice", "before window"),
		chatRecord("device-1", "2021-08-01T00:00:00", "Alice", "window start"),
		chatRecord("device-1", "2021-08-11T12:00:00", "Alice", "window end day"),
		chatRecord("device-1", "2021-08-12T00:00:00", "Alice", "after window"),
	}
	if err := store.ReplaceRecords(ctx, "device-1", types.CategoryChats, records); err != nil {
		t.Fatalf("ReplaceRecords() failed: %v", err)
	}

	res, err := store.QueryRecords(ctx, storage.QueryOptions{
		DateFrom: "2021-08-01",
		DateTo:   "2021-08-11",
	})
	if err != nil {
		t.Fatalf("QueryRecords() failed: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Total: got %d, want 2", res.Total)
	}
	// DateTo is inclusive through the end of its day.
	if got := res.Items[0].Timestamp; got != "2021-08-11T12:00:00" {
		t.Errorf("newest in window: got %q, want 2021-08-11T12:00:00", got)
	}
}

func TestQueryRecordsSearchIsCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []types.Record{
		chatRecord("device-1", "2021-08-01T10:00:00", "Alice", "Meet me at the Marina"),
		chatRecord("device-1", "2021-08-02T10:00:00", "Bob", "running late"),
	}
	if err := store.ReplaceRecords(ctx, "device-1", types.CategoryChats, records); err != nil {
		t.Fatalf("ReplaceRecords() failed: %v", err)
	}

	for _, q := range []string{"marina", "MARINA", "Marina"} {
		res, err := store.QueryRecords(ctx, storage.QueryOptions{Query: q})
		if err != nil {
			t.Fatalf("QueryRecords(%q) failed: %v", q, err)
		}
		if res.Total != 1 {
			t.Errorf("QueryRecords(%q): got %d hits, want 1", q, res.Total)
		}
	}
}

func TestDevicesAndCategoryCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	device := types.Device{
		ID:     "rmr-2021-044-a",
		Name:   "RMR-2021-044 (A)",
		Owner:  "John Smith",
		Source: types.SourceAxiom,
	}
	if err := store.UpsertDevice(ctx, device); err != nil {
		t.Fatalf("UpsertDevice() failed: %v", err)
	}

	// Lazily-loaded bulk categories report counts without inline records.
	if err := store.SetCategoryCount(ctx, device.ID, types.CategoryEmails, 1200); err != nil {
		t.Fatalf("SetCategoryCount() failed: %v", err)
	}
	records := []types.Record{chatRecord(device.ID, "2021-08-01T10:00:00", "Alice", "hi")}
	if err := store.ReplaceRecords(ctx, device.ID, types.CategoryChats, records); err != nil {
		t.Fatalf("ReplaceRecords() failed: %v", err)
	}

	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("ListDevices(): got %d devices, want 1", len(devices))
	}
	got := devices[0]
	if got.Owner != "John Smith" {
		t.Errorf("Owner: got %q, want %q", got.Owner, "John Smith")
	}
	if got.Categories[types.CategoryEmails] != 1200 {
		t.Errorf("emails count: got %d, want 1200", got.Categories[types.CategoryEmails])
	}
	if got.Categories[types.CategoryChats] != 1 {
		t.Errorf("chats count: got %d, want 1", got.Categories[types.CategoryChats])
	}
	if got.TotalRecords != 1201 {
		t.Errorf("TotalRecords: got %d, want 1201", got.TotalRecords)
	}
}

func TestFileStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.FileState(ctx, "/evidence/device-1/chats.md")
	if err != nil {
		t.Fatalf("FileState() failed: %v", err)
	}
	if found {
		t.Fatal("FileState() reported an unindexed file as found")
	}

	if err := store.SetFileState(ctx, "/evidence/device-1/chats.md", 1692355200, 42); err != nil {
		t.Fatalf("SetFileState() failed: %v", err)
	}
	mtime, found, err := store.FileState(ctx, "/evidence/device-1/chats.md")
	if err != nil {
		t.Fatalf("FileState() failed: %v", err)
	}
	if !found {
		t.Fatal("FileState() did not find an indexed file")
	}
	if mtime != 1692355200 {
		t.Errorf("mtime: got %d, want 1692355200", mtime)
	}
}

func TestThreadsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	threads := []types.ChatThread{
		{
			DeviceID:           "device-1",
			ThreadID:           1,
			SourceApp:          "WhatsApp",
			Participants:       []string{"Alice", "Bob"},
			MessageCount:       2,
			FirstDate:          "2021-08-01T10:00:00",
			LastDate:           "2021-08-01T10:05:00",
			LastMessagePreview: "see you there",
		},
		{
			DeviceID:     "device-1",
			ThreadID:     2,
			SourceApp:    "Signal",
			Participants: []string{"Carol"},
			MessageCount: 1,
			FirstDate:    "2021-09-01T09:00:00",
			LastDate:     "2021-09-01T09:00:00",
		},
	}
	messages := map[int][]types.ChatMessage{
		1: {
			{Time: "2021-08-01T10:00:00", Sender: "Alice", Body: "on my way"},
			{Time: "2021-08-01T10:05:00", Sender: "Bob", Body: "see you there"},
		},
		2: {
			{Time: "2021-09-01T09:00:00", Sender: "Carol", Body: "call me"},
		},
	}
	if err := store.ReplaceThreads(ctx, "device-1", threads, messages); err != nil {
		t.Fatalf("ReplaceThreads() failed: %v", err)
	}

	res, err := store.ListThreads(ctx, storage.ThreadOptions{DeviceIDs: []string{"device-1"}})
	if err != nil {
		t.Fatalf("ListThreads() failed: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Total: got %d, want 2", res.Total)
	}
	// Most recent last message first.
	if res.Items[0].ThreadID != 2 {
		t.Errorf("first thread: got %d, want 2", res.Items[0].ThreadID)
	}
	if got := res.Items[1].Participants; len(got) != 2 || got[0] != "Alice" {
		t.Errorf("participants: got %v, want [Alice Bob]", got)
	}

	filtered, err := store.ListThreads(ctx, storage.ThreadOptions{Search: "whatsapp"})
	if err != nil {
		t.Fatalf("ListThreads() with search failed: %v", err)
	}
	if filtered.Total != 1 || filtered.Items[0].ThreadID != 1 {
		t.Errorf("search by source: got %+v, want thread 1", filtered.Items)
	}

	msgs, err := store.ThreadMessages(ctx, []string{"device-1"}, 1)
	if err != nil {
		t.Fatalf("ThreadMessages() failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}
	if msgs[0].Body != "on my way" || msgs[1].Body != "see you there" {
		t.Errorf("message order wrong: %+v", msgs)
	}

	empty, err := store.ThreadMessages(ctx, []string{"device-1"}, 99)
	if err != nil {
		t.Fatalf("ThreadMessages() for unknown thread failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown thread: got %d messages, want 0", len(empty))
	}
}

func TestDiscoveriesSortAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	discoveries := []types.Discovery{
		{
			ID: "d1", Title: "Deleted messages recovered", Category: types.DiscoveryCommunications,
			Flames: 3, Owner: "John Smith", Timestamp: "2021-08-10T10:00:00",
			Tags: []string{"john smith", "deletion"},
		},
		{
			ID: "d2", Title: "Password note", Category: types.DiscoveryPasswords,
			Flames: 2, Owner: "Jane Roe", Timestamp: "2021-08-12T10:00:00",
		},
		{
			ID: "d3", Title: "Courthouse visit", Category: types.DiscoveryLocations,
			Flames: 3, Owner: "Jane Roe", Timestamp: "2021-08-01T10:00:00", Verified: true,
		},
	}
	if err := store.ReplaceDiscoveries(ctx, discoveries); err != nil {
		t.Fatalf("ReplaceDiscoveries() failed: %v", err)
	}

	res, err := store.ListDiscoveries(ctx, storage.DiscoveryOptions{Sort: storage.SortImportance})
	if err != nil {
		t.Fatalf("ListDiscoveries() failed: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items: got %d, want 3", len(res.Items))
	}
	// Verified breaks the tie within flame tier 3.
	wantOrder := []string{"d3", "d1", "d2"}
	for i, want := range wantOrder {
		if res.Items[i].ID != want {
			t.Errorf("importance order[%d]: got %s, want %s", i, res.Items[i].ID, want)
		}
	}

	asc, err := store.ListDiscoveries(ctx, storage.DiscoveryOptions{Sort: storage.SortDateAsc})
	if err != nil {
		t.Fatalf("ListDiscoveries() date_asc failed: %v", err)
	}
	if asc.Items[0].ID != "d3" || asc.Items[2].ID != "d2" {
		t.Errorf("date_asc order wrong: %v", []string{asc.Items[0].ID, asc.Items[1].ID, asc.Items[2].ID})
	}

	// Person filter matches owner or tags.
	byPerson, err := store.ListDiscoveries(ctx, storage.DiscoveryOptions{Person: "John Smith"})
	if err != nil {
		t.Fatalf("ListDiscoveries() by person failed: %v", err)
	}
	if byPerson.Total != 1 || byPerson.Items[0].ID != "d1" {
		t.Errorf("person filter: got %+v, want d1 only", byPerson.Items)
	}

	counts, err := store.DiscoveryCategoryCounts(ctx)
	if err != nil {
		t.Fatalf("DiscoveryCategoryCounts() failed: %v", err)
	}
	if counts[types.DiscoveryCommunications] != 1 || counts[types.DiscoveryPasswords] != 1 {
		t.Errorf("category counts wrong: %v", counts)
	}
}
