// Package storage persists tradewatch state in a single sqlite database
// file. The repository opens two connection pools: a write pool capped at one
// connection, owned by the single-writer sink, and a read pool for query-side
// work. WAL mode lets readers proceed while the writer holds its connection.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"tradewatch/internal/domain"
	"tradewatch/internal/ports"
)

const timeLayout = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS politicians (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	chamber TEXT NOT NULL,
	party TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	fec_candidate_id TEXT NOT NULL DEFAULT '',
	UNIQUE (name, chamber)
);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	politician_id INTEGER NOT NULL REFERENCES politicians(id),
	ticker TEXT NOT NULL,
	action TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	published_date TEXT NOT NULL,
	amount_low INTEGER NOT NULL,
	amount_high INTEGER NOT NULL,
	price REAL,
	price_checked_at TEXT,
	UNIQUE (politician_id, ticker, action, trade_date, amount_low)
);

CREATE TABLE IF NOT EXISTS committees (
	fec_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	designation TEXT NOT NULL DEFAULT '',
	committee_type TEXT NOT NULL DEFAULT '',
	party TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS politician_committees (
	politician_id INTEGER NOT NULL REFERENCES politicians(id),
	committee_id TEXT NOT NULL REFERENCES committees(fec_id),
	PRIMARY KEY (politician_id, committee_id)
);

CREATE TABLE IF NOT EXISTS politician_resolutions (
	politician_id INTEGER PRIMARY KEY REFERENCES politicians(id),
	candidate_id TEXT NOT NULL DEFAULT '',
	resolved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contributions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sub_id TEXT NOT NULL,
	committee_id TEXT NOT NULL,
	cycle INTEGER NOT NULL,
	contributor TEXT NOT NULL DEFAULT '',
	employer TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	amount REAL NOT NULL,
	receipt_date TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_cursors (
	politician_id INTEGER NOT NULL,
	committee_id TEXT NOT NULL,
	position TEXT,
	completed_at TEXT,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (politician_id, committee_id)
);
`

// Repository is the sqlite-backed implementation of all store ports.
type Repository struct {
	read   *sql.DB
	write  *sql.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ ports.TradeStore      = (*Repository)(nil)
	_ ports.PoliticianStore = (*Repository)(nil)
	_ ports.CursorStore     = (*Repository)(nil)
	_ ports.ResolutionStore = (*Repository)(nil)
)

// Open creates the two connection pools against the database file at path.
func Open(path string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	write, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	// The embedded database does not support concurrent writers across
	// connections; the sink loop gets exactly one.
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	read.SetMaxOpenConns(4)

	return &Repository{
		read:   read,
		write:  write,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Init creates the schema. subIDPerCycle selects the contribution
// deduplication key: a composite (sub_id, cycle) index when true, sub_id
// alone when false.
func (r *Repository) Init(ctx context.Context, subIDPerCycle bool) error {
	if _, err := r.write.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	index := `CREATE UNIQUE INDEX IF NOT EXISTS contributions_dedup ON contributions (sub_id)`
	if subIDPerCycle {
		index = `CREATE UNIQUE INDEX IF NOT EXISTS contributions_dedup ON contributions (sub_id, cycle)`
	}
	if _, err := r.write.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create contribution index: %w", err)
	}
	return nil
}

// Close releases both connection pools.
func (r *Repository) Close() error {
	rerr := r.read.Close()
	werr := r.write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// SavePolitician upserts a filer by (name, chamber) and returns its row id.
func (r *Repository) SavePolitician(ctx context.Context, p domain.Politician) (int64, error) {
	var id int64
	err := r.sb.Insert("politicians").
		Columns("name", "chamber", "party", "state", "fec_candidate_id").
		Values(p.Name, p.Chamber, p.Party, p.State, p.FECCandidateID).
		Suffix(`ON CONFLICT (name, chamber) DO UPDATE SET
			party = excluded.party,
			state = excluded.state
			RETURNING id`).
		RunWith(r.write).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert politician %s: %w", p.Name, err)
	}
	return id, nil
}

// Politicians lists all tracked filers.
func (r *Repository) Politicians(ctx context.Context) ([]domain.Politician, error) {
	rows, err := r.sb.Select("id", "name", "chamber", "party", "state", "fec_candidate_id").
		From("politicians").
		OrderBy("id").
		RunWith(r.read).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query politicians: %w", err)
	}
	defer rows.Close()

	var out []domain.Politician
	for rows.Next() {
		var p domain.Politician
		if err := rows.Scan(&p.ID, &p.Name, &p.Chamber, &p.Party, &p.State, &p.FECCandidateID); err != nil {
			return nil, fmt.Errorf("scan politician: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate politicians: %w", err)
	}
	return out, nil
}

// SaveTrades inserts disclosures, ignoring rows already present under the
// application-level unique key, and returns the number actually inserted.
func (r *Repository) SaveTrades(ctx context.Context, trades []domain.Trade) (int, error) {
	inserted := 0
	for _, tr := range trades {
		res, err := r.sb.Insert("trades").
			Options("OR IGNORE").
			Columns("politician_id", "ticker", "action", "trade_date", "published_date", "amount_low", "amount_high").
			Values(tr.PoliticianID, tr.Ticker, string(tr.Action),
				tr.TradeDate.Format(timeLayout), tr.PublishedDate.Format(timeLayout),
				tr.AmountLow, tr.AmountHigh).
			RunWith(r.write).
			ExecContext(ctx)
		if err != nil {
			return inserted, fmt.Errorf("insert trade %s/%s: %w", tr.Ticker, tr.TradeDate.Format(timeLayout), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// TradesNeedingPrices lists trades whose enrichment was never attempted.
// Rows with the confirmed-absent sentinel (price NULL, price_checked_at set)
// are excluded so known-absent quotes are not re-fetched.
func (r *Repository) TradesNeedingPrices(ctx context.Context) ([]domain.Trade, error) {
	rows, err := r.sb.Select("id", "politician_id", "ticker", "action", "trade_date", "published_date", "amount_low", "amount_high").
		From("trades").
		Where(sq.Eq{"price_checked_at": nil}).
		OrderBy("id").
		RunWith(r.read).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query unenriched trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			tr                   domain.Trade
			action               string
			tradeDate, published string
		)
		if err := rows.Scan(&tr.ID, &tr.PoliticianID, &tr.Ticker, &action, &tradeDate, &published, &tr.AmountLow, &tr.AmountHigh); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.Action = domain.TradeAction(action)
		if tr.TradeDate, err = time.Parse(timeLayout, tradeDate); err != nil {
			return nil, fmt.Errorf("trade %d date: %w", tr.ID, err)
		}
		if tr.PublishedDate, err = time.Parse(timeLayout, published); err != nil {
			return nil, fmt.Errorf("trade %d published date: %w", tr.ID, err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// SetTradePrice writes the enriched price for one trade, or the
// confirmed-absent sentinel when price is nil. Idempotent by construction.
func (r *Repository) SetTradePrice(ctx context.Context, tradeID int64, price *float64) error {
	_, err := r.sb.Update("trades").
		Set("price", price).
		Set("price_checked_at", r.now().UTC().Format(timeLayout)).
		Where(sq.Eq{"id": tradeID}).
		RunWith(r.write).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set price for trade %d: %w", tradeID, err)
	}
	return nil
}

// LoadCursor returns the persisted sync position for a partition, or nil when
// the partition has never been started.
func (r *Repository) LoadCursor(ctx context.Context, part domain.SyncPartition) (*domain.SyncCursor, error) {
	var (
		position  sql.NullString
		completed sql.NullString
		updated   string
	)
	err := r.sb.Select("position", "completed_at", "updated_at").
		From("sync_cursors").
		Where(sq.Eq{"politician_id": part.PoliticianID, "committee_id": part.CommitteeID}).
		RunWith(r.read).
		QueryRowContext(ctx).
		Scan(&position, &completed, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor for %d/%s: %w", part.PoliticianID, part.CommitteeID, err)
	}

	cursor := &domain.SyncCursor{Partition: part, Position: position.String}
	if cursor.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("cursor updated_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("cursor completed_at: %w", err)
		}
		cursor.CompletedAt = &t
	}
	return cursor, nil
}

// SaveContributionsPage commits one page of receipts and the advanced cursor
// for the partition in a single transaction. Records already present under
// the dedup index are ignored, so replaying a page after a crash never
// duplicates rows. A page with an empty NextCursor clears the position and
// stamps completed_at.
func (r *Repository) SaveContributionsPage(ctx context.Context, part domain.SyncPartition, page domain.ContributionPage) error {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin page transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range page.Records {
		receiptDate := ""
		if !rec.Date.IsZero() {
			receiptDate = rec.Date.Format(timeLayout)
		}
		_, err := r.sb.Insert("contributions").
			Options("OR IGNORE").
			Columns("sub_id", "committee_id", "cycle", "contributor", "employer", "city", "state", "amount", "receipt_date").
			Values(rec.SubID, rec.CommitteeID, rec.Cycle, rec.Contributor, rec.Employer, rec.City, rec.State, rec.Amount, receiptDate).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert contribution %s: %w", rec.SubID, err)
		}
	}

	now := r.now().UTC().Format(timeLayout)
	var position, completed any
	if page.NextCursor == "" {
		completed = now
	} else {
		position = page.NextCursor
	}
	_, err = r.sb.Insert("sync_cursors").
		Columns("politician_id", "committee_id", "position", "completed_at", "updated_at").
		Values(part.PoliticianID, part.CommitteeID, position, completed, now).
		Suffix(`ON CONFLICT (politician_id, committee_id) DO UPDATE SET
			position = excluded.position,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("advance cursor for %d/%s: %w", part.PoliticianID, part.CommitteeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit page for %d/%s: %w", part.PoliticianID, part.CommitteeID, err)
	}
	return nil
}

// ContributionCount reports how many receipts are stored for a committee.
func (r *Repository) ContributionCount(ctx context.Context, committeeID string) (int, error) {
	var n int
	err := r.sb.Select("COUNT(*)").
		From("contributions").
		Where(sq.Eq{"committee_id": committeeID}).
		RunWith(r.read).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contributions for %s: %w", committeeID, err)
	}
	return n, nil
}

// CommitteeLinks returns the persisted committee linkage for a politician and
// the time it was last resolved. A nil resolvedAt means never resolved; an
// empty slice with resolvedAt set is a cached negative resolution.
func (r *Repository) CommitteeLinks(ctx context.Context, politicianID int64) ([]domain.Committee, *time.Time, error) {
	var resolvedRaw string
	err := r.sb.Select("resolved_at").
		From("politician_resolutions").
		Where(sq.Eq{"politician_id": politicianID}).
		RunWith(r.read).
		QueryRowContext(ctx).
		Scan(&resolvedRaw)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load resolution for %d: %w", politicianID, err)
	}
	resolvedAt, err := time.Parse(timeLayout, resolvedRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("resolution timestamp: %w", err)
	}

	rows, err := r.sb.Select("c.fec_id", "c.name", "c.designation", "c.committee_type", "c.party").
		From("politician_committees pc").
		Join("committees c ON c.fec_id = pc.committee_id").
		Where(sq.Eq{"pc.politician_id": politicianID}).
		OrderBy("c.fec_id").
		RunWith(r.read).
		QueryContext(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("query committee links for %d: %w", politicianID, err)
	}
	defer rows.Close()

	links := []domain.Committee{}
	for rows.Next() {
		var c domain.Committee
		if err := rows.Scan(&c.FECID, &c.Name, &c.Designation, &c.Type, &c.Party); err != nil {
			return nil, nil, fmt.Errorf("scan committee link: %w", err)
		}
		links = append(links, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate committee links: %w", err)
	}
	return links, &resolvedAt, nil
}

// SaveResolution persists a remote resolution result: the denormalized
// committee metadata, the politician→committee linkage, the candidate id,
// and the resolution timestamp, all in one transaction. An empty committees
// slice records a negative resolution with the same weight.
func (r *Repository) SaveResolution(ctx context.Context, politicianID int64, candidateID string, committees []domain.Committee) error {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolution transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range committees {
		_, err := r.sb.Insert("committees").
			Columns("fec_id", "name", "designation", "committee_type", "party").
			Values(c.FECID, c.Name, c.Designation, c.Type, c.Party).
			Suffix(`ON CONFLICT (fec_id) DO UPDATE SET
				name = excluded.name,
				designation = excluded.designation,
				committee_type = excluded.committee_type,
				party = excluded.party`).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("upsert committee %s: %w", c.FECID, err)
		}
	}

	if _, err := r.sb.Delete("politician_committees").
		Where(sq.Eq{"politician_id": politicianID}).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return fmt.Errorf("clear committee links for %d: %w", politicianID, err)
	}
	for _, c := range committees {
		if _, err := r.sb.Insert("politician_committees").
			Columns("politician_id", "committee_id").
			Values(politicianID, c.FECID).
			RunWith(tx).
			ExecContext(ctx); err != nil {
			return fmt.Errorf("link committee %s: %w", c.FECID, err)
		}
	}

	if _, err := r.sb.Insert("politician_resolutions").
		Columns("politician_id", "candidate_id", "resolved_at").
		Values(politicianID, candidateID, r.now().UTC().Format(timeLayout)).
		Suffix(`ON CONFLICT (politician_id) DO UPDATE SET
			candidate_id = excluded.candidate_id,
			resolved_at = excluded.resolved_at`).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return fmt.Errorf("record resolution for %d: %w", politicianID, err)
	}

	if candidateID != "" {
		if _, err := r.sb.Update("politicians").
			Set("fec_candidate_id", candidateID).
			Where(sq.Eq{"id": politicianID}).
			RunWith(tx).
			ExecContext(ctx); err != nil {
			return fmt.Errorf("store candidate id for %d: %w", politicianID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolution for %d: %w", politicianID, err)
	}
	return nil
}
