package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact integer precision.
// Transactions run at SERIALIZABLE isolation; serialization failures are
// reported as model.ErrConflict.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.ReadOnly, fn)
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, pgx.ReadWrite, fn)
}

func (s *PostgresStore) run(ctx context.Context, mode pgx.TxAccessMode, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: mode})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", mapPgError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		// Domain errors pass through untouched; driver errors are mapped.
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", mapPgError(err))
	}
	return nil
}

// mapPgError turns serialization failures and deadlocks into model.ErrConflict.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", model.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// RunMigrations applies the embedded SQL files in lexicographic order and
// tracks applied migrations in a schema_migrations table.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := s.applyMigration(ctx, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) applyMigration(ctx context.Context, name string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check migration %s: %w", name, err)
	}
	if exists {
		return nil
	}

	data, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("postgres: read migration %s: %w", name, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx for %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("postgres: exec migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
		return fmt.Errorf("postgres: record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit migration %s: %w", name, err)
	}
	return nil
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) nextval(ctx context.Context, seq string) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, "SELECT nextval($1::regclass)", seq).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: nextval %s: %w", seq, err)
	}
	return id, nil
}

// --- Identifiers ---

func (t *pgTx) NextFundID(ctx context.Context) (model.FundID, error) {
	id, err := t.nextval(ctx, "fund_id_seq")
	return model.FundID(id), err
}

func (t *pgTx) NextProposalID(ctx context.Context) (model.ProposalID, error) {
	id, err := t.nextval(ctx, "proposal_id_seq")
	return model.ProposalID(id), err
}

func (t *pgTx) NextEventID(ctx context.Context) (model.EventID, error) {
	id, err := t.nextval(ctx, "event_id_seq")
	return model.EventID(id), err
}

func (t *pgTx) NextOutcomeID(ctx context.Context) (model.OutcomeID, error) {
	id, err := t.nextval(ctx, "outcome_id_seq")
	return model.OutcomeID(id), err
}

// --- Funds and share holdings ---

const fundColumns = `id, trader, total_share, balance::TEXT, name, image_url, created_at`

func (t *pgTx) GetFund(ctx context.Context, id model.FundID) (*model.Fund, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1`, id)
	f, err := scanFund(row)
	if err != nil {
		return nil, notFound(err, "fund %d", id)
	}
	return f, nil
}

func (t *pgTx) PutFund(ctx context.Context, f *model.Fund) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO funds (id, trader, total_share, balance, name, image_url, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET trader = EXCLUDED.trader, balance = EXCLUDED.balance,
		     name = EXCLUDED.name, image_url = EXCLUDED.image_url`,
		f.ID, string(f.Trader), f.TotalShare, f.Balance.String(),
		f.Metadata.Name, f.Metadata.ImageURL, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put fund %d: %w", f.ID, err)
	}
	return nil
}

func (t *pgTx) ListFunds(ctx context.Context) ([]model.Fund, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+fundColumns+` FROM funds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list funds: %w", err)
	}
	defer rows.Close()

	var funds []model.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, *f)
	}
	return funds, rows.Err()
}

func (t *pgTx) GetHolding(ctx context.Context, fundID model.FundID, account model.AccountID) (int64, error) {
	var shares int64
	err := t.tx.QueryRow(ctx,
		`SELECT shares FROM holdings WHERE fund_id = $1 AND account = $2`,
		fundID, string(account),
	).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get holding: %w", err)
	}
	return shares, nil
}

func (t *pgTx) PutHolding(ctx context.Context, h model.Holding) error {
	if h.Shares < 0 {
		return fmt.Errorf("postgres: negative holding for fund %d", h.FundID)
	}
	var err error
	if h.Shares == 0 {
		_, err = t.tx.Exec(ctx,
			`DELETE FROM holdings WHERE fund_id = $1 AND account = $2`,
			h.FundID, string(h.Account))
	} else {
		_, err = t.tx.Exec(ctx,
			`INSERT INTO holdings (fund_id, account, shares) VALUES ($1, $2, $3)
			 ON CONFLICT (fund_id, account) DO UPDATE SET shares = EXCLUDED.shares`,
			h.FundID, string(h.Account), h.Shares)
	}
	if err != nil {
		return fmt.Errorf("postgres: put holding: %w", err)
	}
	return nil
}

func (t *pgTx) ListHoldings(ctx context.Context, fundID model.FundID) ([]model.Holding, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT fund_id, account, shares FROM holdings WHERE fund_id = $1 ORDER BY account`, fundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var account string
		if err := rows.Scan(&h.FundID, &account, &h.Shares); err != nil {
			return nil, err
		}
		h.Account = model.AccountID(account)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// --- Trade proposals ---

const proposalColumns = `id, fund_id, proponent, share, price::TEXT, close_time,
	proposed_person, is_completed, acceptor, created_at, completed_at`

func (t *pgTx) GetProposal(ctx context.Context, id model.ProposalID) (*model.Proposal, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		return nil, notFound(err, "proposal %d", id)
	}
	return p, nil
}

func (t *pgTx) PutProposal(ctx context.Context, p *model.Proposal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO proposals (id, fund_id, proponent, share, price, close_time,
		                        proposed_person, is_completed, acceptor, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET is_completed = EXCLUDED.is_completed, acceptor = EXCLUDED.acceptor,
		     completed_at = EXCLUDED.completed_at`,
		p.ID, p.FundID, string(p.Proponent), p.Share, p.Price.String(), p.CloseTime,
		accountPtr(p.ProposedPerson), p.IsCompleted, accountPtr(p.Acceptor), p.CreatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put proposal %d: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) ListProposals(ctx context.Context) ([]model.Proposal, error) {
	return t.queryProposals(ctx, `SELECT `+proposalColumns+` FROM proposals ORDER BY id`)
}

func (t *pgTx) ListProposalsByFund(ctx context.Context, fundID model.FundID) ([]model.Proposal, error) {
	return t.queryProposals(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE fund_id = $1 ORDER BY id`, fundID)
}

func (t *pgTx) queryProposals(ctx context.Context, sql string, args ...any) ([]model.Proposal, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// --- Events, markets and outcomes ---

const eventColumns = `id, owner, question, name, image_url, description, creation_deposit::TEXT, created_at`

func (t *pgTx) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err, "event %d", id)
	}
	return e, nil
}

func (t *pgTx) PutEvent(ctx context.Context, e *model.Event) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (id, owner, question, name, image_url, description, creation_deposit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Owner), e.Question,
		e.Metadata.Name, e.Metadata.ImageURL, e.Metadata.Description,
		e.CreationDeposit.String(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put event %d: %w", e.ID, err)
	}
	return nil
}

func (t *pgTx) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (t *pgTx) GetMarket(ctx context.Context, eventID model.EventID) (*model.Market, error) {
	var m model.Market
	var pool, paidOut string
	var winner *int64
	err := t.tx.QueryRow(ctx,
		`SELECT event_id, pool::TEXT, paid_out::TEXT, is_resolved, resolve_date, winning_outcome, resolved_at
		 FROM markets WHERE event_id = $1`, eventID).
		Scan(&m.EventID, &pool, &paidOut, &m.IsResolved, &m.ResolveDate, &winner, &m.ResolvedAt)
	if err != nil {
		return nil, notFound(err, "market for event %d", eventID)
	}
	if m.Pool, err = parseAmount(pool); err != nil {
		return nil, err
	}
	if m.PaidOut, err = parseAmount(paidOut); err != nil {
		return nil, err
	}
	if winner != nil {
		w := model.OutcomeID(*winner)
		m.WinningOutcome = &w
	}
	return &m, nil
}

func (t *pgTx) PutMarket(ctx context.Context, m *model.Market) error {
	var winner *int64
	if m.WinningOutcome != nil {
		w := int64(*m.WinningOutcome)
		winner = &w
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO markets (event_id, pool, paid_out, is_resolved, resolve_date, winning_outcome, resolved_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5, $6, $7)
		 ON CONFLICT (event_id) DO UPDATE
		 SET pool = EXCLUDED.pool, paid_out = EXCLUDED.paid_out, is_resolved = EXCLUDED.is_resolved,
		     winning_outcome = EXCLUDED.winning_outcome, resolved_at = EXCLUDED.resolved_at`,
		m.EventID, m.Pool.String(), m.PaidOut.String(), m.IsResolved, m.ResolveDate, winner, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put market %d: %w", m.EventID, err)
	}
	return nil
}

const outcomeColumns = `id, event_id, description, deposit_per_supply::TEXT, total_supply, available_supply`

func (t *pgTx) GetOutcome(ctx context.Context, id model.OutcomeID) (*model.Outcome, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE id = $1`, id)
	o, err := scanOutcome(row)
	if err != nil {
		return nil, notFound(err, "outcome %d", id)
	}
	return o, nil
}

func (t *pgTx) PutOutcome(ctx context.Context, o *model.Outcome) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO outcomes (id, event_id, description, deposit_per_supply, total_supply, available_supply)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET available_supply = EXCLUDED.available_supply`,
		o.ID, o.EventID, o.Description, o.DepositPerSupply.String(), o.TotalSupply, o.AvailableSupply,
	)
	if err != nil {
		return fmt.Errorf("postgres: put outcome %d: %w", o.ID, err)
	}
	return nil
}

func (t *pgTx) ListOutcomes(ctx context.Context, eventID model.EventID) ([]model.Outcome, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

// --- Bets ---

const positionColumns = `outcome_id, fund_id, supply, deposited::TEXT`

func (t *pgTx) GetPosition(ctx context.Context, outcomeID model.OutcomeID, fundID model.FundID) (*model.Position, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE outcome_id = $1 AND fund_id = $2`,
		outcomeID, fundID)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFound(err, "position of fund %d on outcome %d", fundID, outcomeID)
	}
	return p, nil
}

func (t *pgTx) PutPosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO positions (outcome_id, fund_id, supply, deposited)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (outcome_id, fund_id) DO UPDATE
		 SET supply = EXCLUDED.supply, deposited = EXCLUDED.deposited`,
		p.OutcomeID, p.FundID, p.Supply, p.Deposited.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: put position: %w", err)
	}
	return nil
}

func (t *pgTx) ListPositionsByOutcome(ctx context.Context, outcomeID model.OutcomeID) ([]model.Position, error) {
	return t.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE outcome_id = $1 ORDER BY fund_id`, outcomeID)
}

func (t *pgTx) ListPositionsByFund(ctx context.Context, fundID model.FundID) ([]model.Position, error) {
	return t.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE fund_id = $1 ORDER BY outcome_id`, fundID)
}

func (t *pgTx) queryPositions(ctx context.Context, sql string, args ...any) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (t *pgTx) InsertBetEntry(ctx context.Context, e *model.BetEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bet_entries (id, event_id, outcome_id, fund_id, placer, supply, deposit, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8)`,
		e.ID, e.EventID, e.OutcomeID, e.FundID, string(e.Placer), e.Supply, e.Deposit.String(), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet entry: %w", err)
	}
	return nil
}

func (t *pgTx) ListBetEntriesByEvent(ctx context.Context, eventID model.EventID) ([]model.BetEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id::TEXT, event_id, outcome_id, fund_id, placer, supply, deposit::TEXT, timestamp
		 FROM bet_entries WHERE event_id = $1 ORDER BY seq`, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bet entries: %w", err)
	}
	defer rows.Close()

	var entries []model.BetEntry
	for rows.Next() {
		var e model.BetEntry
		var placer, deposit string
		if err := rows.Scan(&e.ID, &e.EventID, &e.OutcomeID, &e.FundID, &placer,
			&e.Supply, &deposit, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Placer = model.AccountID(placer)
		if e.Deposit, err = parseAmount(deposit); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Scanning helpers ---

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...any) error
}

func scanFund(r pgxRow) (*model.Fund, error) {
	var f model.Fund
	var trader, balance string
	if err := r.Scan(&f.ID, &trader, &f.TotalShare, &balance,
		&f.Metadata.Name, &f.Metadata.ImageURL, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Trader = model.AccountID(trader)
	var err error
	if f.Balance, err = parseAmount(balance); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanProposal(r pgxRow) (*model.Proposal, error) {
	var p model.Proposal
	var proponent, price string
	var proposed, acceptor *string
	var closeTime, completedAt *time.Time
	if err := r.Scan(&p.ID, &p.FundID, &proponent, &p.Share, &price, &closeTime,
		&proposed, &p.IsCompleted, &acceptor, &p.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	p.Proponent = model.AccountID(proponent)
	p.CloseTime = closeTime
	p.CompletedAt = completedAt
	p.ProposedPerson = toAccountPtr(proposed)
	p.Acceptor = toAccountPtr(acceptor)
	var err error
	if p.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanEvent(r pgxRow) (*model.Event, error) {
	var e model.Event
	var owner, deposit string
	if err := r.Scan(&e.ID, &owner, &e.Question, &e.Metadata.Name, &e.Metadata.ImageURL,
		&e.Metadata.Description, &deposit, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Owner = model.AccountID(owner)
	var err error
	if e.CreationDeposit, err = parseAmount(deposit); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanOutcome(r pgxRow) (*model.Outcome, error) {
	var o model.Outcome
	var dps string
	if err := r.Scan(&o.ID, &o.EventID, &o.Description, &dps, &o.TotalSupply, &o.AvailableSupply); err != nil {
		return nil, err
	}
	var err error
	if o.DepositPerSupply, err = parseAmount(dps); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanPosition(r pgxRow) (*model.Position, error) {
	var p model.Position
	var deposited string
	if err := r.Scan(&p.OutcomeID, &p.FundID, &p.Supply, &deposited); err != nil {
		return nil, err
	}
	var err error
	if p.Deposited, err = parseAmount(deposited); err != nil {
		return nil, err
	}
	return &p, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse amount %q: %w", s, err)
	}
	return d, nil
}

// notFound maps pgx.ErrNoRows to model.ErrNotFound with a description.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, model.ErrNotFound)...)
	}
	return fmt.Errorf("postgres: "+format+": %w", append(args, err)...)
}

func accountPtr(a *model.AccountID) *string {
	if a == nil {
		return nil
	}
	s := string(*a)
	return &s
}

func toAccountPtr(s *string) *model.AccountID {
	if s == nil {
		return nil
	}
	a := model.AccountID(*s)
	return &a
}
