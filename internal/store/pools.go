package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/defi-yield-agent/internal/aggregate"
	"github.com/yourorg/defi-yield-agent/internal/model"
)

const poolColumns = `id, chain, protocol, symbol, tvl_usd, apy, apy_base, apy_reward,
	risk_score, il_risk, pool_id, last_updated, created_at`

// sortColumns whitelists the columns pools may be ordered by
var sortColumns = map[string]string{
	"apy":          "apy",
	"tvl_usd":      "tvl_usd",
	"risk_score":   "risk_score",
	"apy_base":     "apy_base",
	"apy_reward":   "apy_reward",
	"chain":        "chain",
	"protocol":     "protocol",
	"symbol":       "symbol",
	"last_updated": "last_updated",
}

// PoolFilter narrows a pool listing. Zero values disable a filter.
type PoolFilter struct {
	// Chain matches case-insensitively
	Chain string

	// Protocol matches as a case-insensitive substring
	Protocol string

	MinRiskScore int
	MinAPY       float64
}

// PoolQuery is a filtered, sorted, paginated pool listing
type PoolQuery struct {
	PoolFilter

	// SortBy must be one of the whitelisted columns; defaults to apy
	SortBy    string
	Ascending bool

	// Limit <= 0 returns every matching row
	Limit  int
	Offset int
}

// IsSortColumn reports whether pools can be ordered by name
func IsSortColumn(name string) bool {
	_, ok := sortColumns[name]
	return ok
}

// UpsertPools writes pools in one statement keyed on pool_id. Existing rows keep
// their id and created_at. A repeated pool_id within the batch keeps the last record.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	pools = dedupeByPoolID(pools)
	if len(pools) == 0 {
		return nil
	}

	now := time.Now().UTC()
	const cols = 13
	var (
		b    strings.Builder
		args = make([]interface{}, 0, len(pools)*cols)
	)
	b.WriteString(`INSERT INTO pools (` + poolColumns + `) VALUES `)
	for i, p := range pools {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c)
		}
		b.WriteString(")")

		lastUpdated := p.LastUpdated
		if lastUpdated.IsZero() {
			lastUpdated = now
		}
		args = append(args,
			uuid.NewString(),
			p.Chain,
			p.Protocol,
			p.Symbol,
			p.TVLUSD,
			p.APY,
			p.APYBase,
			p.APYReward,
			p.RiskScore,
			string(p.ILRisk),
			p.PoolID,
			lastUpdated,
			now,
		)
	}
	b.WriteString(` ON CONFLICT (pool_id) DO UPDATE SET
		chain = excluded.chain,
		protocol = excluded.protocol,
		symbol = excluded.symbol,
		tvl_usd = excluded.tvl_usd,
		apy = excluded.apy,
		apy_base = excluded.apy_base,
		apy_reward = excluded.apy_reward,
		risk_score = excluded.risk_score,
		il_risk = excluded.il_risk,
		last_updated = excluded.last_updated`)

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("%w: upsert %d pools: %v", ErrBatchFailed, len(pools), err)
	}
	return nil
}

func dedupeByPoolID(pools []model.Pool) []model.Pool {
	index := make(map[string]int, len(pools))
	out := make([]model.Pool, 0, len(pools))
	for _, p := range pools {
		if i, ok := index[p.PoolID]; ok {
			out[i] = p
			continue
		}
		index[p.PoolID] = len(out)
		out = append(out, p)
	}
	return out
}

// ListPools returns pools matching q
func (s *Store) ListPools(ctx context.Context, q PoolQuery) ([]model.Pool, error) {
	where, args := buildWhere(q.PoolFilter)

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "apy"
	}
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}

	query := `SELECT ` + poolColumns + ` FROM pools` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)

	if q.Limit > 0 {
		args = append(args, q.Limit, max(q.Offset, 0))
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	} else if q.Offset > 0 {
		// no limit requested; OFFSET alone is not portable
		args = append(args, int64(1<<62), q.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	pools := make([]model.Pool, 0)
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return pools, nil
}

// CountPools returns the number of pools matching f
func (s *Store) CountPools(ctx context.Context, f PoolFilter) (int, error) {
	where, args := buildWhere(f)

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pools: %w", err)
	}
	return n, nil
}

// TopPoolsByAPY returns up to n pools with the highest APY
func (s *Store) TopPoolsByAPY(ctx context.Context, n int) ([]model.Pool, error) {
	return s.ListPools(ctx, PoolQuery{SortBy: "apy", Limit: n})
}

// GetPool returns the pool with surrogate id, or ErrNotFound
func (s *Store) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPool(r rowScanner) (model.Pool, error) {
	var (
		p         model.Pool
		risk      sql.NullInt64
		ilRisk    sql.NullString
		updatedAt sql.NullTime
		createdAt sql.NullTime
	)
	err := r.Scan(
		&p.ID,
		&p.Chain,
		&p.Protocol,
		&p.Symbol,
		&p.TVLUSD,
		&p.APY,
		&p.APYBase,
		&p.APYReward,
		&risk,
		&ilRisk,
		&p.PoolID,
		&updatedAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("scan pool: %w", err)
	}

	p.RiskScore = int(risk.Int64)
	p.ILRisk = model.ILRisk(ilRisk.String)
	p.LastUpdated = updatedAt.Time
	p.CreatedAt = createdAt.Time
	return p, nil
}

func buildWhere(f PoolFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Chain != "" {
		add("LOWER(chain) = LOWER($%d)", f.Chain)
	}
	if f.Protocol != "" {
		add("LOWER(protocol) LIKE '%%' || LOWER($%d) || '%%'", f.Protocol)
	}
	if f.MinRiskScore > 0 {
		add("risk_score >= $%d", f.MinRiskScore)
	}
	if f.MinAPY > 0 {
		add("apy >= $%d", f.MinAPY)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// PoolStats reduces every stored pool into dashboard figures
func (s *Store) PoolStats(ctx context.Context) (model.PoolStats, error) {
	pools, err := s.ListPools(ctx, PoolQuery{SortBy: "tvl_usd"})
	if err != nil {
		return model.PoolStats{}, err
	}
	return aggregate.Stats(pools), nil
}
