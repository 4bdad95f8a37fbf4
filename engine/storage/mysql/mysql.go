// Package mysql implements a workflow engine storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/workflow"

	"github.com/go-sql-driver/mysql"
)

// Schema contains the MySQL schema for the engine storage.
//
//go:embed schema.sql
var Schema string

// errDupEntry is the MySQL error number for duplicate keys.
const errDupEntry = 1062

// MySQLStorage implements a storage.AllStorage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// txcb executes SQL within transactions when wrapped in tx().
type txcb func(ctx context.Context, tx *sql.Tx) error

// tx wraps g in transactions using db.
// If g returns an err the transaction will be rolled back; otherwise committed.
func tx(ctx context.Context, db *sql.DB, g txcb) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}
	if err = g(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback: %w; while trying to handle error: %v", rbErr, err)
		}
		return fmt.Errorf("tx rolled back: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	return nil
}

func isDup(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDupEntry
}

func insertHistory(ctx context.Context, tx *sql.Tx, h *workflow.HistoryEntry) error {
	entry, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO history (id, instance_id, entry) VALUES (?, ?, ?);`,
		h.ID, h.InstanceID, entry,
	)
	if isDup(err) {
		return fmt.Errorf("%w: history %s", storage.ErrAlreadyExists, h.ID)
	}
	return err
}

// CreateSubmission implements the storage interface method.
func (s *MySQLStorage) CreateSubmission(ctx context.Context, c *storage.Creation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	sub, err := json.Marshal(c.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	return tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO submissions (id, form_id, status, submission) VALUES (?, ?, ?, ?);`,
			c.Submission.ID, c.Submission.FormID, string(c.Submission.Status), sub,
		)
		if isDup(err) {
			return fmt.Errorf("%w: submission %s", storage.ErrAlreadyExists, c.Submission.ID)
		} else if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		if c.Instance == nil {
			return nil
		}
		inst, err := json.Marshal(c.Instance)
		if err != nil {
			return fmt.Errorf("marshal instance: %w", err)
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO instances (id, submission_id, active, version, instance) VALUES (?, ?, ?, ?, ?);`,
			c.Instance.ID, c.Instance.SubmissionID, c.Instance.Active, c.Instance.Version, inst,
		)
		if isDup(err) {
			return fmt.Errorf("%w: instance %s", storage.ErrAlreadyExists, c.Instance.ID)
		} else if err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		return insertHistory(ctx, tx, c.History)
	})
}

// RetrieveSubmission implements the storage interface method.
func (s *MySQLStorage) RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT submission FROM submissions WHERE id = ?;`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: submission %s", storage.ErrNotFound, id)
	} else if err != nil {
		return nil, err
	}
	sub := new(workflow.Submission)
	return sub, json.Unmarshal(raw, sub)
}

// RetrieveInstance implements the storage interface method.
func (s *MySQLStorage) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT instance FROM instances WHERE id = ?;`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, id)
	} else if err != nil {
		return nil, err
	}
	inst := new(workflow.Instance)
	return inst, json.Unmarshal(raw, inst)
}

// StoreTransition implements the storage interface method.
// The version check is a conditional update so no row locks are held
// while the engine computes transitions.
func (s *MySQLStorage) StoreTransition(ctx context.Context, t *storage.Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	inst, err := json.Marshal(t.Instance)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	sub, err := json.Marshal(t.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	return tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE instances SET active = ?, version = ?, instance = ? WHERE id = ? AND version = ?;`,
			t.Instance.Active, t.Instance.Version, inst, t.Instance.ID, t.Instance.Version-1,
		)
		if err != nil {
			return fmt.Errorf("update instance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update instance rows: %w", err)
		}
		if n < 1 {
			var version int64
			err = tx.QueryRowContext(ctx, `SELECT version FROM instances WHERE id = ?;`, t.Instance.ID).Scan(&version)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: instance %s", storage.ErrNotFound, t.Instance.ID)
			} else if err != nil {
				return err
			}
			return fmt.Errorf("%w: instance %s at version %d", storage.ErrConflict, t.Instance.ID, version)
		}
		_, err = tx.ExecContext(
			ctx,
			`UPDATE submissions SET status = ?, submission = ? WHERE id = ?;`,
			string(t.Submission.Status), sub, t.Submission.ID,
		)
		if err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		return insertHistory(ctx, tx, t.History)
	})
}

// RetrieveHistory implements the storage interface method.
func (s *MySQLStorage) RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM instances WHERE id = ?);`, instanceID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, instanceID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM history WHERE instance_id = ? ORDER BY seq;`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []*workflow.HistoryEntry
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return history, err
		}
		h := new(workflow.HistoryEntry)
		if err = json.Unmarshal(raw, h); err != nil {
			return history, fmt.Errorf("unmarshal history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// RetrieveActiveInstances implements the storage interface method.
func (s *MySQLStorage) RetrieveActiveInstances(ctx context.Context) ([]*workflow.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instance FROM instances WHERE active = TRUE;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var insts []*workflow.Instance
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return insts, err
		}
		inst := new(workflow.Instance)
		if err = json.Unmarshal(raw, inst); err != nil {
			return insts, fmt.Errorf("unmarshal instance: %w", err)
		}
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}
