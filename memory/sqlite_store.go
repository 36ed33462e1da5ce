//go:build !without_sqlite

package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	chronicleerrors "github.com/habiliai/chronicle/errors"
	"github.com/habiliai/chronicle/internal/db"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SqliteStore implements Store using SQLite with the sqlite-vec extension.
// The record table is the source of truth; vectors live in a vec0 virtual
// table plus a metadata table keyed by record id.
type SqliteStore struct {
	db     *gorm.DB
	vecDim int

	// writeMu serializes appends so concurrent producers queue instead of
	// interleaving partial writes.
	writeMu sync.Mutex

	// lastCommit keeps timestamps monotonically non-decreasing across
	// appends within this store instance.
	lastCommit time.Time
}

// SqliteMemoryRow represents the database structure for memory records
type SqliteMemoryRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"index"`

	Content  string `gorm:"not null"`
	Source   string `gorm:"index"`
	Tags     datatypes.JSONType[[]string]
	Metadata datatypes.JSONType[map[string]any]
}

// TableName specifies the table name for GORM
func (SqliteMemoryRow) TableName() string {
	return "memories"
}

type SqliteVectorRow struct {
	RecordID  uint `gorm:"primaryKey"`
	UpdatedAt time.Time

	Model       string
	ContentHash string
}

func (SqliteVectorRow) TableName() string {
	return "memory_vectors"
}

// SqliteCursorRow persists indexer cursors, one named row per cursor.
type SqliteCursorRow struct {
	Name   string `gorm:"primaryKey"`
	LastID uint   `gorm:"not null"`
}

func (SqliteCursorRow) TableName() string {
	return "index_cursors"
}

const embeddingCursorName = "embedding"

// NewSqliteStore creates a new SQLite-backed memory store
func NewSqliteStore(dbPath string, dimension int) (*SqliteStore, error) {
	// Initialize sqlite-vec extension
	sqlite_vec.Auto()

	gormDB, err := db.OpenSqlite(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SqliteStore{
		db:     gormDB,
		vecDim: dimension,
	}

	if err := gormDB.AutoMigrate(&SqliteMemoryRow{}, &SqliteVectorRow{}, &SqliteCursorRow{}); err != nil {
		return nil, errors.Wrapf(err, "failed to migrate memory tables")
	}

	if err := store.createVectorTable(); err != nil {
		return nil, err
	}

	// Resume the monotonic timestamp clock from the newest committed record
	var last SqliteMemoryRow
	if err := gormDB.Order("created_at DESC").First(&last).Error; err == nil {
		store.lastCommit = last.CreatedAt
	}

	return store, nil
}

// createVectorTable creates the sqlite-vec virtual table
func (s *SqliteStore) createVectorTable() error {
	// Verify sqlite-vec is loaded
	var sqliteVersion, vecVersion string
	err := s.db.Raw("SELECT sqlite_version(), vec_version()").Row().Scan(&sqliteVersion, &vecVersion)
	if err != nil {
		return errors.Wrapf(err, "sqlite-vec extension not properly loaded")
	}

	createTableSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vec USING vec0(
			record_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.vecDim)

	if err := s.db.Exec(createTableSQL).Error; err != nil {
		return errors.Wrapf(err, "failed to create memory_vec table")
	}

	return nil
}

// Append implements Store.Append
func (s *SqliteStore) Append(ctx context.Context, record *Record) error {
	if strings.TrimSpace(record.Content) == "" {
		return errors.Wrapf(chronicleerrors.ErrValidation, "content must not be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now()
	if now.Before(s.lastCommit) {
		now = s.lastCommit
	}

	source := record.Source
	if source == "" {
		source = SourceUnknown
	}

	row := SqliteMemoryRow{
		CreatedAt: now,
		Content:   record.Content,
		Source:    source,
		Tags:      datatypes.NewJSONType(record.Tags),
		Metadata:  datatypes.NewJSONType(record.Metadata),
	}

	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Create(&row).Error; err != nil {
		return wrapBusy(err, "failed to append record")
	}

	s.lastCommit = now
	record.ID = row.ID
	record.CreatedAt = row.CreatedAt
	record.Source = source
	return nil
}

// Get implements Store.Get
func (s *SqliteStore) Get(ctx context.Context, id uint) (*Record, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var row SqliteMemoryRow
	if err := tx.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(chronicleerrors.ErrNotFound, "record %d", id)
		}
		return nil, errors.Wrapf(err, "failed to fetch record %d", id)
	}

	return rowToRecord(&row), nil
}

// Scan implements Store.Scan
func (s *SqliteStore) Scan(ctx context.Context, filter Filter) ([]*Record, error) {
	_, tx := db.OpenSession(ctx, s.db)

	q := tx.Model(&SqliteMemoryRow{})
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("created_at < ?", *filter.Until)
	}
	if filter.Contains != "" {
		q = q.Where(`LOWER(content) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(filter.Contains))+"%")
	}

	var rows []SqliteMemoryRow
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to scan records")
	}

	// Tag superset matching happens here; tags are a JSON column
	results := make([]*Record, 0, len(rows))
	for i := range rows {
		record := rowToRecord(&rows[i])
		if len(filter.Tags) > 0 {
			tagFilter := Filter{Tags: filter.Tags}
			if !tagFilter.Matches(record) {
				continue
			}
		}
		results = append(results, record)
	}

	return results, nil
}

// Count implements Store.Count
func (s *SqliteStore) Count(ctx context.Context) (int64, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var count int64
	if err := tx.Model(&SqliteMemoryRow{}).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(err, "failed to count records")
	}
	return count, nil
}

// Stats implements Store.Stats
func (s *SqliteStore) Stats(ctx context.Context) (*Stats, error) {
	_, tx := db.OpenSession(ctx, s.db)

	stats := &Stats{
		BySource: map[string]int64{},
		ByTag:    map[string]int64{},
	}

	if err := tx.Model(&SqliteMemoryRow{}).Count(&stats.Total).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to count records")
	}
	if err := tx.Model(&SqliteVectorRow{}).Count(&stats.Indexed).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to count vectors")
	}

	rows, err := tx.Model(&SqliteMemoryRow{}).
		Select("source, COUNT(*) AS n").
		Group("source").
		Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to group by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, errors.Wrapf(err, "failed to scan source count")
		}
		stats.BySource[source] = n
	}

	// Tags are JSON; counted in Go
	var tagRows []SqliteMemoryRow
	if err := tx.Select("tags").Find(&tagRows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load tags")
	}
	for i := range tagRows {
		for _, tag := range tagRows[i].Tags.Data() {
			stats.ByTag[tag]++
		}
	}

	return stats, nil
}

// UpsertVector implements Store.UpsertVector
func (s *SqliteStore) UpsertVector(ctx context.Context, entry *VectorEntry) error {
	if len(entry.Vector) != s.vecDim {
		return errors.Wrapf(chronicleerrors.ErrValidation, "vector dimension %d, want %d", len(entry.Vector), s.vecDim)
	}

	serialized, err := sqlite_vec.SerializeFloat32(entry.Vector)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize embedding")
	}

	_, tx := db.OpenSession(ctx, s.db)
	return tx.Transaction(func(tx *gorm.DB) error {
		row := SqliteVectorRow{
			RecordID:    entry.RecordID,
			Model:       entry.Model,
			ContentHash: entry.ContentHash,
		}
		if err := tx.Save(&row).Error; err != nil {
			return wrapBusy(err, "failed to save vector metadata")
		}

		// Replace any existing vector for this record
		if err := tx.Exec("DELETE FROM memory_vec WHERE record_id = ?", recordKey(entry.RecordID)).Error; err != nil {
			return errors.Wrapf(err, "failed to delete existing vector")
		}
		if err := tx.Exec(
			"INSERT INTO memory_vec (record_id, embedding) VALUES (?, ?)",
			recordKey(entry.RecordID), serialized,
		).Error; err != nil {
			return errors.Wrapf(err, "failed to insert vector")
		}

		return nil
	})
}

// RemoveVector implements Store.RemoveVector
func (s *SqliteStore) RemoveVector(ctx context.Context, id uint) error {
	_, tx := db.OpenSession(ctx, s.db)
	return tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM memory_vec WHERE record_id = ?", recordKey(id)).Error; err != nil {
			return errors.Wrapf(err, "failed to delete vector")
		}
		if err := tx.Delete(&SqliteVectorRow{}, "record_id = ?", id).Error; err != nil {
			return errors.Wrapf(err, "failed to delete vector metadata")
		}
		return nil
	})
}

// DropVectors implements Store.DropVectors
func (s *SqliteStore) DropVectors(ctx context.Context) error {
	_, tx := db.OpenSession(ctx, s.db)
	return tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM memory_vec").Error; err != nil {
			return errors.Wrapf(err, "failed to clear vector table")
		}
		if err := tx.Exec("DELETE FROM memory_vectors").Error; err != nil {
			return errors.Wrapf(err, "failed to clear vector metadata")
		}
		return nil
	})
}

// Nearest implements Store.Nearest
func (s *SqliteStore) Nearest(ctx context.Context, query []float32, k int) ([]ScoredRecord, error) {
	if len(query) == 0 || k <= 0 {
		return []ScoredRecord{}, nil
	}

	serialized, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize query embedding")
	}

	_, tx := db.OpenSession(ctx, s.db)
	rows, err := tx.Raw(`
		SELECT record_id, distance
		FROM memory_vec
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, serialized, k).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute vector search")
	}
	defer rows.Close()

	scoreByID := make(map[uint]float64)
	var ids []uint
	for rows.Next() {
		var key string
		var distance float64
		if err := rows.Scan(&key, &distance); err != nil {
			return nil, errors.Wrapf(err, "failed to scan search row")
		}
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(chronicleerrors.ErrCorruptIndex, "non-numeric vector key %q", key)
		}
		// Cosine distance in [0, 2] becomes similarity in [-1, 1]
		scoreByID[uint(id)] = 1.0 - distance
		ids = append(ids, uint(id))
	}

	if len(ids) == 0 {
		return []ScoredRecord{}, nil
	}

	var recordRows []SqliteMemoryRow
	if err := tx.Where("id IN ?", ids).Find(&recordRows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch matched records")
	}

	results := make([]ScoredRecord, 0, len(recordRows))
	for i := range recordRows {
		record := rowToRecord(&recordRows[i])
		results = append(results, ScoredRecord{
			Record: record,
			Score:  scoreByID[record.ID],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID > results[j].Record.ID
	})

	return results, nil
}

// MissingVectors implements Store.MissingVectors
func (s *SqliteStore) MissingVectors(ctx context.Context, afterID uint) ([]*Record, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var rows []SqliteMemoryRow
	if err := tx.
		Where("id > ? AND id NOT IN (SELECT record_id FROM memory_vectors)", afterID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find unindexed records")
	}

	results := make([]*Record, 0, len(rows))
	for i := range rows {
		results = append(results, rowToRecord(&rows[i]))
	}
	return results, nil
}

// VectorEntries implements Store.VectorEntries
func (s *SqliteStore) VectorEntries(ctx context.Context) ([]*VectorEntry, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var metaRows []SqliteVectorRow
	if err := tx.Order("record_id ASC").Find(&metaRows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load vector metadata")
	}

	entries := make([]*VectorEntry, 0, len(metaRows))
	for _, meta := range metaRows {
		var blob []byte
		if err := tx.Raw("SELECT embedding FROM memory_vec WHERE record_id = ?", recordKey(meta.RecordID)).
			Row().Scan(&blob); err != nil {
			return nil, errors.Wrapf(chronicleerrors.ErrCorruptIndex, "missing vector for record %d", meta.RecordID)
		}
		vector, err := deserializeFloat32(blob)
		if err != nil {
			return nil, errors.Wrapf(chronicleerrors.ErrCorruptIndex, "undecodable vector for record %d", meta.RecordID)
		}
		entries = append(entries, &VectorEntry{
			RecordID:    meta.RecordID,
			Model:       meta.Model,
			ContentHash: meta.ContentHash,
			Vector:      vector,
		})
	}

	return entries, nil
}

// HighWaterMark implements Store.HighWaterMark
func (s *SqliteStore) HighWaterMark(ctx context.Context) (uint, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var row SqliteCursorRow
	if err := tx.First(&row, "name = ?", embeddingCursorName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to load index cursor")
	}
	return row.LastID, nil
}

// SetHighWaterMark implements Store.SetHighWaterMark
func (s *SqliteStore) SetHighWaterMark(ctx context.Context, id uint) error {
	_, tx := db.OpenSession(ctx, s.db)

	row := SqliteCursorRow{Name: embeddingCursorName, LastID: id}
	if err := tx.Save(&row).Error; err != nil {
		return wrapBusy(err, "failed to persist index cursor")
	}
	return nil
}

// Verify implements Store.Verify
func (s *SqliteStore) Verify(ctx context.Context) error {
	_, tx := db.OpenSession(ctx, s.db)

	var metaRows []SqliteVectorRow
	if err := tx.Find(&metaRows).Error; err != nil {
		return errors.Wrapf(err, "failed to load vector metadata")
	}

	for _, meta := range metaRows {
		var record SqliteMemoryRow
		if err := tx.First(&record, "id = ?", meta.RecordID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(chronicleerrors.ErrCorruptIndex, "vector for nonexistent record %d", meta.RecordID)
			}
			return errors.Wrapf(err, "failed to fetch record %d", meta.RecordID)
		}
		if contentHash(record.Content) != meta.ContentHash {
			return errors.Wrapf(chronicleerrors.ErrCorruptIndex, "stale content hash for record %d", meta.RecordID)
		}
	}

	var vecCount int64
	if err := tx.Raw("SELECT COUNT(*) FROM memory_vec").Row().Scan(&vecCount); err != nil {
		return errors.Wrapf(err, "failed to count vectors")
	}
	if vecCount != int64(len(metaRows)) {
		return errors.Wrapf(chronicleerrors.ErrCorruptIndex, "vector table has %d rows, metadata has %d", vecCount, len(metaRows))
	}

	return nil
}

// Close implements Store.Close
func (s *SqliteStore) Close() error {
	return db.CloseDB(s.db)
}

func rowToRecord(row *SqliteMemoryRow) *Record {
	return &Record{
		ID:        row.ID,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
		Tags:      row.Tags.Data(),
		Source:    row.Source,
		Metadata:  row.Metadata.Data(),
	}
}

// escapeLike neutralizes LIKE metacharacters so Contains is a literal
// substring match, never a pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// recordKey formats a record id for the vec0 table, which keys by TEXT.
func recordKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// wrapBusy maps sqlite lock contention onto the transient ErrStoreBusy so
// callers can retry with backoff.
func wrapBusy(err error, msg string) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	if strings.Contains(text, "database is locked") || strings.Contains(text, "SQLITE_BUSY") {
		return errors.Wrapf(chronicleerrors.ErrStoreBusy, "%s: %v", msg, err)
	}
	return errors.Wrapf(err, "%s", msg)
}

var (
	_ Store = (*SqliteStore)(nil)
)
