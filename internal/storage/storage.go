// Package storage defines the record store that the indexing pipeline writes
// and the query layer reads. Records are partitioned by (device, category);
// a partition is only ever replaced wholesale, never mutated in place, so
// readers observe either the old complete record set or the new one.
package storage

import (
	"context"
	"errors"

	"github.com/scrypster/casefile/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// RecordStore is the persistence boundary of the pipeline. Implementations
// exist for SQLite and PostgreSQL; which one backs a deployment is a
// configuration choice, not a compatibility surface.
type RecordStore interface {
	// ReplaceRecords atomically swaps the (deviceID, category) partition for
	// the given records and updates the partition's category count. Records
	// with a category that does not match the partition are rejected.
	ReplaceRecords(ctx context.Context, deviceID string, category types.Category, records []types.Record) error

	// QueryRecords returns records matching opts, ordered by timestamp
	// descending, with pagination.
	QueryRecords(ctx context.Context, opts QueryOptions) (*PaginatedResult[RecordHit], error)

	// UpsertDevice registers or updates a device row.
	UpsertDevice(ctx context.Context, device types.Device) error

	// ListDevices returns all registered devices with their per-category
	// record counts populated.
	ListDevices(ctx context.Context) ([]types.Device, error)

	// SetCategoryCount records the category count for a device partition
	// whose records are not stored inline (bulk-JSON estimates).
	SetCategoryCount(ctx context.Context, deviceID string, category types.Category, count int) error

	// FileState returns the recorded modification time for a source file,
	// with found=false when the file has never been indexed.
	FileState(ctx context.Context, path string) (mtime int64, found bool, err error)

	// SetFileState records a source file's modification time and record count.
	SetFileState(ctx context.Context, path string, mtime int64, recordCount int) error

	// ReplaceThreads atomically swaps a device's chat threads and their
	// messages. Thread message maps are keyed by thread ID.
	ReplaceThreads(ctx context.Context, deviceID string, threads []types.ChatThread, messages map[int][]types.ChatMessage) error

	// ListThreads returns chat threads matching opts, ordered by last
	// message date descending.
	ListThreads(ctx context.Context, opts ThreadOptions) (*PaginatedResult[types.ChatThread], error)

	// ThreadMessages returns the messages of one thread in timestamp order.
	// An unknown thread yields an empty slice, not an error.
	ThreadMessages(ctx context.Context, deviceIDs []string, threadID int) ([]types.ChatMessage, error)

	// ReplaceDiscoveries replaces the whole discovery set.
	ReplaceDiscoveries(ctx context.Context, discoveries []types.Discovery) error

	// ListDiscoveries returns discoveries matching opts in the requested
	// sort order.
	ListDiscoveries(ctx context.Context, opts DiscoveryOptions) (*PaginatedResult[types.Discovery], error)

	// DiscoveryCategoryCounts returns the number of discoveries per
	// presentation category.
	DiscoveryCategoryCounts(ctx context.Context) (map[string]int, error)

	// Close releases any resources held by the store.
	Close() error
}
