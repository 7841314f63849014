package station

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
}

var statusLogColumns = []string{
	"station_id",
	"num_bikes_available",
	"num_bikes_mechanical",
	"num_bikes_ebike",
	"num_docks_available",
	"is_installed",
	"is_renting",
	"is_returning",
	"last_reported",
	"status",
}

const statusLogSelect = `
		SELECT station_id, num_bikes_available, num_bikes_mechanical, num_bikes_ebike,
			num_docks_available, is_installed, is_renting, is_returning, last_reported, status
		FROM station_status_logs
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL station repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertStation inserts a station or overwrites the existing row.
func (r *PostgresRepository) UpsertStation(ctx context.Context, s *Station) error {
	query := `
		INSERT INTO stations (station_id, name, lat, lon, capacity, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id) DO UPDATE SET
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			capacity = EXCLUDED.capacity,
			address = EXCLUDED.address
	`

	_, err := r.db.Exec(ctx, query,
		s.StationID,
		s.Name,
		s.Lat,
		s.Lon,
		s.Capacity,
		s.Address,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert station %s: %w", ErrPersistenceWrite, s.StationID, err)
	}
	return nil
}

// InsertStatusLogs appends all logs with a single COPY.
func (r *PostgresRepository) InsertStatusLogs(ctx context.Context, logs []*StatusLog) error {
	rows := make([][]any, len(logs))
	for i, l := range logs {
		rows[i] = []any{
			l.StationID,
			l.NumBikesAvailable,
			l.NumBikesMechanical,
			l.NumBikesEbike,
			l.NumDocksAvailable,
			l.IsInstalled,
			l.IsRenting,
			l.IsReturning,
			l.LastReported,
			l.Status,
		}
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"station_status_logs"}, statusLogColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("%w: insert %d status logs: %w", ErrPersistenceWrite, len(logs), err)
	}
	if n != int64(len(logs)) {
		return fmt.Errorf("%w: inserted %d of %d status logs", ErrPersistenceWrite, n, len(logs))
	}
	return nil
}

// ListStations returns all stations ordered by station_id.
func (r *PostgresRepository) ListStations(ctx context.Context) ([]*Station, error) {
	query := `
		SELECT station_id, name, lat, lon, capacity, address
		FROM stations
		ORDER BY station_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var stations []*Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.StationID, &s.Name, &s.Lat, &s.Lon, &s.Capacity, &s.Address); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return stations, nil
}

// LatestStatuses returns the most recent log of every station.
func (r *PostgresRepository) LatestStatuses(ctx context.Context) ([]*StatusLog, error) {
	query := `
		SELECT DISTINCT ON (station_id) station_id, num_bikes_available, num_bikes_mechanical, num_bikes_ebike,
			num_docks_available, is_installed, is_renting, is_returning, last_reported, status
		FROM station_status_logs
		ORDER BY station_id, last_reported DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest statuses: %w", err)
	}
	return scanStatusLogs(rows)
}

// StatusHistory returns the logs of one station ordered by last_reported.
func (r *PostgresRepository) StatusHistory(ctx context.Context, stationID string, q HistoryQuery) ([]*StatusLog, error) {
	query := statusLogSelect + `
		WHERE station_id = $1
			AND ($2::timestamptz IS NULL OR last_reported >= $2)
			AND ($3::timestamptz IS NULL OR last_reported <= $3)
		ORDER BY last_reported ASC
	`

	rows, err := r.db.Query(ctx, query, stationID, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	return scanStatusLogs(rows)
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanStatusLogs(rows pgx.Rows) ([]*StatusLog, error) {
	defer rows.Close()

	var logs []*StatusLog
	for rows.Next() {
		var (
			l            StatusLog
			lastReported time.Time
		)
		err := rows.Scan(
			&l.StationID,
			&l.NumBikesAvailable,
			&l.NumBikesMechanical,
			&l.NumBikesEbike,
			&l.NumDocksAvailable,
			&l.IsInstalled,
			&l.IsRenting,
			&l.IsReturning,
			&lastReported,
			&l.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		l.LastReported = lastReported.UTC()
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
