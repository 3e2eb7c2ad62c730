package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/timberwatch/timberwatch/internal/model"
)

// Store provides SQLite-based storage for the hub's durable state.
// It manages connection pooling and provides methods for the queue,
// detection, telemetry, and audit tables.
//
// Design decision: One database file holds every table rather than a
// file per concern. The queue, detections, and audit logs are queried
// together by the report command, and a single file keeps backup and
// transfer off the hub trivial.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. Recommended; the ingest worker and sync scheduler
	// write from different goroutines.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store at the specified directory.
// If CreateIfNotExists is true, the directory and database file are
// created. If false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, "timberwatch.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; funnel everything through a
	// single connection so queue updates never race.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- The offline detection queue: detections awaiting authoritative
	-- cloud verification. Rows are never deleted; failed items remain
	-- for audit.
	CREATE TABLE IF NOT EXISTS detection_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		node_id TEXT NOT NULL,
		local_label TEXT NOT NULL,
		local_confidence INTEGER NOT NULL,
		local_tier TEXT NOT NULL,
		raster_path TEXT,
		raster_b64 TEXT,
		lat REAL DEFAULT 0,
		lon REAL DEFAULT 0,
		battery INTEGER DEFAULT 0,
		metadata TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		result TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		last_error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_queue_status ON detection_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_created ON detection_queue(created_at);

	-- Classified detections, one row per routed artifact.
	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		detected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		label TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		tier TEXT NOT NULL,
		backend TEXT,
		lat REAL DEFAULT 0,
		lon REAL DEFAULT 0,
		raster_path TEXT,
		result TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_detections_node ON detections(node_id);
	CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(detected_at);
	CREATE INDEX IF NOT EXISTS idx_detections_tier ON detections(tier);

	-- Control-channel telemetry: alerts, heartbeats, boot notices.
	CREATE TABLE IF NOT EXISTS telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		node_id TEXT NOT NULL,
		type TEXT NOT NULL,
		confidence REAL DEFAULT 0,
		lat REAL DEFAULT 0,
		lon REAL DEFAULT 0,
		battery INTEGER DEFAULT 0,
		rssi INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_telemetry_node ON telemetry(node_id);
	CREATE INDEX IF NOT EXISTS idx_telemetry_time ON telemetry(received_at);

	-- Last-known state per node, updated from any traffic.
	CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		last_seen DATETIME NOT NULL,
		battery INTEGER DEFAULT 0,
		lat REAL DEFAULT 0,
		lon REAL DEFAULT 0,
		rssi INTEGER DEFAULT 0,
		alert_count INTEGER NOT NULL DEFAULT 0
	);

	-- Connectivity transitions, for correlating queue growth with
	-- uplink outages.
	CREATE TABLE IF NOT EXISTS network_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		checked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		online INTEGER NOT NULL
	);

	-- One row per sync scheduler pass.
	CREATE TABLE IF NOT EXISTS sync_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		online INTEGER NOT NULL,
		items_processed INTEGER NOT NULL,
		items_synced INTEGER NOT NULL,
		items_failed INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		errors TEXT
	);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// EnqueueDetection inserts a new pending queue item and returns its
// database id.
func (s *Store) EnqueueDetection(ctx context.Context, item *model.QueueItem) (int64, error) {
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize metadata: %w", err)
	}

	query := `
	INSERT INTO detection_queue
		(node_id, local_label, local_confidence, local_tier, raster_path, raster_b64, lat, lon, battery, metadata, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
	`

	result, err := s.db.ExecContext(ctx, query,
		item.NodeID,
		item.LocalLabel,
		item.LocalConfidence,
		item.LocalTier.String(),
		item.RasterPath,
		item.RasterB64,
		item.Lat,
		item.Lon,
		item.Battery,
		string(metadataJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue detection: %w", err)
	}

	return result.LastInsertId()
}

// OldestPending returns up to limit pending queue items, strictly
// oldest first.
func (s *Store) OldestPending(ctx context.Context, limit int) ([]model.QueueItem, error) {
	query := `
	SELECT id, created_at, node_id, local_label, local_confidence, local_tier,
	       raster_path, raster_b64, lat, lon, battery, metadata, status,
	       result, retry_count, synced_at, last_error
	FROM detection_queue
	WHERE status = 'pending'
	ORDER BY created_at ASC, id ASC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetQueueItem retrieves one queue item by id, or nil if absent.
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error) {
	query := `
	SELECT id, created_at, node_id, local_label, local_confidence, local_tier,
	       raster_path, raster_b64, lat, lon, battery, metadata, status,
	       result, retry_count, synced_at, last_error
	FROM detection_queue
	WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	item, err := scanQueueItem(rows)
	if err != nil {
		return nil, err
	}
	return &item, rows.Err()
}

func scanQueueItem(rows *sql.Rows) (model.QueueItem, error) {
	var item model.QueueItem
	var createdAt, tier string
	var metadataJSON, resultJSON, syncedAt, lastError sql.NullString

	err := rows.Scan(
		&item.ID,
		&createdAt,
		&item.NodeID,
		&item.LocalLabel,
		&item.LocalConfidence,
		&tier,
		&item.RasterPath,
		&item.RasterB64,
		&item.Lat,
		&item.Lon,
		&item.Battery,
		&metadataJSON,
		&item.Status,
		&resultJSON,
		&item.RetryCount,
		&syncedAt,
		&lastError,
	)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("failed to scan queue item: %w", err)
	}

	item.CreatedAt = parseTimestamp(createdAt)
	item.LocalTier = model.ParseThreatTier(tier)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &item.Metadata); err != nil {
			item.Metadata = nil
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var res model.ClassificationResult
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err == nil {
			item.Result = &res
		}
	}
	if syncedAt.Valid && syncedAt.String != "" {
		t := parseTimestamp(syncedAt.String)
		item.SyncedAt = &t
	}
	if lastError.Valid {
		item.LastError = lastError.String
	}
	return item, nil
}

// MarkSynced transitions a queue item to synced and attaches the
// authoritative result.
func (s *Store) MarkSynced(ctx context.Context, id int64, result *model.ClassificationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	query := `
	UPDATE detection_queue
	SET status = 'synced', result = ?, synced_at = CURRENT_TIMESTAMP, last_error = ''
	WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, string(resultJSON), id); err != nil {
		return fmt.Errorf("failed to mark item synced: %w", err)
	}
	return nil
}

// MarkFailed records one failed sync attempt. The retry count is
// incremented and the item stays pending until it reaches maxRetries,
// at which point it transitions to the terminal failed status. The
// increment and the status decision happen in one statement so a crash
// between them cannot leave the row inconsistent. A maxRetries of zero
// fails the item on this attempt regardless of its retry count.
func (s *Store) MarkFailed(ctx context.Context, id int64, maxRetries int, errMsg string) error {
	query := `
	UPDATE detection_queue
	SET retry_count = retry_count + 1,
	    last_error = ?,
	    status = CASE WHEN retry_count + 1 >= ? THEN 'failed' ELSE 'pending' END
	WHERE id = ? AND status = 'pending'
	`

	if _, err := s.db.ExecContext(ctx, query, errMsg, maxRetries, id); err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	return nil
}

// QueueStats counts queue items by status.
func (s *Store) QueueStats(ctx context.Context) (map[model.SyncStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM detection_queue GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	stats := map[model.SyncStatus]int{
		model.SyncPending: 0,
		model.SyncSynced:  0,
		model.SyncFailed:  0,
	}
	for rows.Next() {
		var status model.SyncStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats[status] = count
	}

	return stats, rows.Err()
}

// DetectionRecord is a classified detection as stored in the
// detections table.
type DetectionRecord struct {
	ID         int64
	ArtifactID string
	NodeID     string
	DetectedAt time.Time
	Label      string
	Confidence int
	Tier       model.ThreatTier
	Backend    string
	Lat        float64
	Lon        float64
	RasterPath string
	Result     model.ClassificationResult
}

// InsertDetection stores one classified detection.
func (s *Store) InsertDetection(ctx context.Context, art *model.Artifact, res *model.ClassificationResult) (int64, error) {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize result: %w", err)
	}

	query := `
	INSERT INTO detections
		(artifact_id, node_id, label, confidence, tier, backend, lat, lon, raster_path, result)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		art.ID,
		art.NodeID,
		res.Label,
		res.Confidence,
		res.Tier.String(),
		res.Backend,
		art.Lat,
		art.Lon,
		art.RasterPath,
		string(resultJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	return result.LastInsertId()
}

// DetectionsSince returns detections recorded after the cutoff, newest
// first.
func (s *Store) DetectionsSince(ctx context.Context, cutoff time.Time) ([]DetectionRecord, error) {
	query := `
	SELECT id, artifact_id, node_id, detected_at, label, confidence, tier, backend, lat, lon, raster_path, result
	FROM detections
	WHERE detected_at > ?
	ORDER BY detected_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []DetectionRecord
	for rows.Next() {
		var rec DetectionRecord
		var detectedAt, tier string
		var resultJSON string

		err := rows.Scan(
			&rec.ID,
			&rec.ArtifactID,
			&rec.NodeID,
			&detectedAt,
			&rec.Label,
			&rec.Confidence,
			&tier,
			&rec.Backend,
			&rec.Lat,
			&rec.Lon,
			&rec.RasterPath,
			&resultJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}

		rec.DetectedAt = parseTimestamp(detectedAt)
		rec.Tier = model.ParseThreatTier(tier)
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			continue // Skip malformed results
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// InsertTelemetry stores one control-channel message.
func (s *Store) InsertTelemetry(ctx context.Context, msg *model.ControlMessage) error {
	query := `
	INSERT INTO telemetry (received_at, node_id, type, confidence, lat, lon, battery, rssi)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ReceivedAt.UTC().Format("2006-01-02 15:04:05"),
		msg.NodeID,
		msg.Type,
		msg.Confidence,
		msg.Lat,
		msg.Lon,
		msg.Battery,
		msg.RSSI,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

// UpsertNodeStatus updates a node's last-known state from any traffic
// it sent. Alerts additionally bump the node's alert counter.
func (s *Store) UpsertNodeStatus(ctx context.Context, msg *model.ControlMessage) error {
	alertBump := 0
	if msg.Type == model.ControlAlert {
		alertBump = 1
	}

	query := `
	INSERT INTO nodes (node_id, last_seen, battery, lat, lon, rssi, alert_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(node_id) DO UPDATE SET
		last_seen = excluded.last_seen,
		battery = excluded.battery,
		lat = CASE WHEN excluded.lat != 0 THEN excluded.lat ELSE nodes.lat END,
		lon = CASE WHEN excluded.lon != 0 THEN excluded.lon ELSE nodes.lon END,
		rssi = excluded.rssi,
		alert_count = nodes.alert_count + ?
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.NodeID,
		msg.ReceivedAt.UTC().Format("2006-01-02 15:04:05"),
		msg.Battery,
		msg.Lat,
		msg.Lon,
		msg.RSSI,
		alertBump,
		alertBump,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node status: %w", err)
	}
	return nil
}

// NodeStatus is a node's last-known state.
type NodeStatus struct {
	NodeID     string
	LastSeen   time.Time
	Battery    int
	Lat        float64
	Lon        float64
	RSSI       int
	AlertCount int
}

// ListNodes returns every known node, most recently seen first.
func (s *Store) ListNodes(ctx context.Context) ([]NodeStatus, error) {
	query := `
	SELECT node_id, last_seen, battery, lat, lon, rssi, alert_count
	FROM nodes
	ORDER BY last_seen DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []NodeStatus
	for rows.Next() {
		var n NodeStatus
		var lastSeen string
		if err := rows.Scan(&n.NodeID, &lastSeen, &n.Battery, &n.Lat, &n.Lon, &n.RSSI, &n.AlertCount); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.LastSeen = parseTimestamp(lastSeen)
		nodes = append(nodes, n)
	}

	return nodes, rows.Err()
}

// RecordNetworkStatus appends one connectivity observation.
func (s *Store) RecordNetworkStatus(ctx context.Context, online bool) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO network_log (online) VALUES (?)`, boolToInt(online)); err != nil {
		return fmt.Errorf("failed to record network status: %w", err)
	}
	return nil
}

// RecordSyncPass appends one sync scheduler pass to the history.
func (s *Store) RecordSyncPass(ctx context.Context, report *model.SyncReport) error {
	var errorsJSON []byte
	if len(report.Errors) > 0 {
		var err error
		errorsJSON, err = json.Marshal(report.Errors)
		if err != nil {
			return fmt.Errorf("failed to serialize sync errors: %w", err)
		}
	}

	query := `
	INSERT INTO sync_history (started_at, online, items_processed, items_synced, items_failed, duration_ms, errors)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		report.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		boolToInt(report.Online),
		report.ItemsProcessed,
		report.ItemsSynced,
		report.ItemsFailed,
		report.Duration.Milliseconds(),
		string(errorsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to record sync pass: %w", err)
	}
	return nil
}

// RecentSyncHistory returns the latest sync passes, newest first.
func (s *Store) RecentSyncHistory(ctx context.Context, limit int) ([]model.SyncReport, error) {
	query := `
	SELECT started_at, online, items_processed, items_synced, items_failed, duration_ms, errors
	FROM sync_history
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	var reports []model.SyncReport
	for rows.Next() {
		var rep model.SyncReport
		var startedAt string
		var online int
		var durationMS int64
		var errorsJSON sql.NullString

		if err := rows.Scan(&startedAt, &online, &rep.ItemsProcessed, &rep.ItemsSynced, &rep.ItemsFailed, &durationMS, &errorsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sync pass: %w", err)
		}

		rep.StartedAt = parseTimestamp(startedAt)
		rep.Online = online != 0
		rep.Duration = time.Duration(durationMS) * time.Millisecond
		if errorsJSON.Valid && errorsJSON.String != "" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &rep.Errors); err != nil {
				rep.Errors = nil
			}
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats. SQLite may return timestamps in different formats depending
// on configuration. If parsing fails with all formats, returns zero
// time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
