package guardian

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Load(ctx context.Context, owner string) (Account, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback(ctx)
	return loadAccountTx(ctx, tx, owner, false)
}

func (p *PGStore) Apply(ctx context.Context, owner, idemKey, action string, fn Mutation) (Result, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx)

	if idemKey != "" {
		if err := claimIdempotency(ctx, tx, owner, idemKey, action); err != nil {
			return Result{}, err
		}
	}

	acct, err := loadAccountTx(ctx, tx, owner, true)
	if err != nil {
		return Result{}, err
	}
	next, res, err := fn(acct)
	if err != nil {
		return res, err
	}
	if res.Mutated {
		if err := saveAccountTx(ctx, tx, owner, next, res.Events); err != nil {
			return res, err
		}
	}
	return res, tx.Commit(ctx)
}

func (p *PGStore) Owners(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT owner FROM yg.guardians ORDER BY owner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

func loadAccountTx(ctx context.Context, tx pgx.Tx, owner string, forUpdate bool) (Account, error) {
	var acct Account
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var g Guardian
	err := tx.QueryRow(ctx, `
		SELECT id, owner, name, stage, mood, created_at, last_fed_at
		FROM yg.guardians
		WHERE owner = $1`+lock, owner).
		Scan(&g.ID, &g.Owner, &g.Name, &g.Stage, &g.Mood, &g.CreatedAt, &g.LastFedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acct, nil
	}
	if err != nil {
		return acct, err
	}
	acct.Guardian = &g

	var v Vault
	err = tx.QueryRow(ctx, `
		SELECT principal, apy, deposited_at, last_updated_at, accrued_yield, total_yield_claimed
		FROM yg.vaults
		WHERE owner = $1`+lock, owner).
		Scan(&v.Principal, &v.APY, &v.DepositedAt, &v.LastUpdatedAt, &v.AccruedYield, &v.TotalYieldClaimed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return acct, err
	}
	if err == nil {
		acct.Vault = &v
	}

	rows, err := tx.Query(ctx, `
		SELECT id, name, rarity, slot, equipped, unlocked_at
		FROM yg.reward_items
		WHERE owner = $1
		ORDER BY unlocked_at, seq
	`, owner)
	if err != nil {
		return acct, err
	}
	acct.Inventory = []RewardItem{}
	for rows.Next() {
		var it RewardItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Rarity, &it.Slot, &it.Equipped, &it.UnlockedAt); err != nil {
			rows.Close()
			return acct, err
		}
		acct.Inventory = append(acct.Inventory, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return acct, err
	}

	rows, err = tx.Query(ctx, `
		SELECT id, type, amount, occurred_at, description
		FROM yg.activity
		WHERE owner = $1
		ORDER BY occurred_at DESC, seq DESC
	`, owner)
	if err != nil {
		return acct, err
	}
	defer rows.Close()
	acct.Activity = []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Amount, &ev.Timestamp, &ev.Description); err != nil {
			return acct, err
		}
		acct.Activity = append(acct.Activity, ev)
	}
	return acct, rows.Err()
}

// saveAccountTx writes the snapshot. fresh holds the events appended by this
// operation in the order they happened.
func saveAccountTx(ctx context.Context, tx pgx.Tx, owner string, acct Account, fresh []Event) error {
	if acct.Guardian == nil {
		for _, table := range []string{"yg.activity", "yg.reward_items", "yg.vaults", "yg.guardians"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE owner = $1`, owner); err != nil {
				return err
			}
		}
		return nil
	}

	g := acct.Guardian
	if _, err := tx.Exec(ctx, `
		INSERT INTO yg.guardians (owner, id, name, stage, mood, created_at, last_fed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (owner) DO UPDATE
		SET stage = EXCLUDED.stage,
		    mood = EXCLUDED.mood,
		    last_fed_at = EXCLUDED.last_fed_at,
		    updated_at = now()
	`, owner, g.ID, g.Name, string(g.Stage), g.Mood, g.CreatedAt, g.LastFedAt); err != nil {
		return err
	}

	if v := acct.Vault; v != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO yg.vaults (owner, principal, apy, deposited_at, last_updated_at, accrued_yield, total_yield_claimed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (owner) DO UPDATE
			SET principal = EXCLUDED.principal,
			    apy = EXCLUDED.apy,
			    deposited_at = EXCLUDED.deposited_at,
			    last_updated_at = EXCLUDED.last_updated_at,
			    accrued_yield = EXCLUDED.accrued_yield,
			    total_yield_claimed = EXCLUDED.total_yield_claimed
		`, owner, v.Principal, v.APY, v.DepositedAt, v.LastUpdatedAt, v.AccruedYield, v.TotalYieldClaimed); err != nil {
			return err
		}
	}

	itemIDs := make([]string, 0, len(acct.Inventory))
	for _, it := range acct.Inventory {
		itemIDs = append(itemIDs, it.ID)
		if _, err := tx.Exec(ctx, `
			INSERT INTO yg.reward_items (id, owner, name, rarity, slot, equipped, unlocked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET equipped = EXCLUDED.equipped
		`, it.ID, owner, it.Name, string(it.Rarity), string(it.Slot), it.Equipped, it.UnlockedAt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM yg.reward_items WHERE owner = $1 AND NOT (id = ANY($2))
	`, owner, itemIDs); err != nil {
		return err
	}

	for _, ev := range fresh {
		if _, err := tx.Exec(ctx, `
			INSERT INTO yg.activity (id, owner, type, amount, occurred_at, description)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ev.ID, owner, string(ev.Type), ev.Amount, ev.Timestamp, ev.Description); err != nil {
			return err
		}
	}
	keep := make([]string, 0, len(acct.Activity))
	for _, ev := range acct.Activity {
		keep = append(keep, ev.ID)
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM yg.activity WHERE owner = $1 AND NOT (id = ANY($2))
	`, owner, keep)
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, owner, key, action string) error {
	cmd, err := tx.Exec(ctx, `
		INSERT INTO yg.idempotency_keys (owner, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (owner, key) DO NOTHING
	`, owner, strings.TrimSpace(key), action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
