// Package postgresdb provides a PostgreSQL-based implementation of the storage interface.
// The users table name comes from configuration; its schema is created by a goose
// Go migration that tracks its version in a per-table goose_<table> relation.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/patric-chuzhbe/usercrud/internal/db/storage"
	"github.com/patric-chuzhbe/usercrud/internal/models"
)

// ErrInvalidTableName is returned by New for names that are not plain lowercase identifiers.
var ErrInvalidTableName = errors.New("table name must match " + tableNamePattern)

// The users table and goose_<table> must resolve to the same relation whether
// quoted or not, and the latter must fit the 63-byte identifier limit.
const tableNamePattern = `^[a-z_][a-z0-9_]{0,56}$`

var validTableName = regexp.MustCompile(tableNamePattern)

// PostgresDB is a PostgreSQL-backed user store.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
	table             string
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops the users table and its migration history before migrating.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

func newWithDB(database *sql.DB, tableName string, connectionTimeout time.Duration) *PostgresDB {
	return &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
		table:             pgx.Identifier{tableName}.Sanitize(),
	}
}

// New connects to databaseDSN, creates tableName when missing and returns the store.
func New(
	ctx context.Context,
	databaseDSN string,
	tableName string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if !validTableName.MatchString(tableName) {
		return nil, fmt.Errorf("%w, got %q", ErrInvalidTableName, tableName)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := newWithDB(database, tableName, connectionTimeout)

	if options.DBPreReset {
		if err := result.resetDB(ctx, tableName); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := result.migrate(ctx, tableName); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `result.migrate()` calling: %w",
				err,
			)
	}

	return result, nil
}

func migrationsTableName(tableName string) string {
	return "goose_" + tableName
}

func (db *PostgresDB) migrate(ctx context.Context, tableName string) error {
	store, err := database.NewStore(database.DialectPostgres, migrationsTableName(tableName))
	if err != nil {
		return err
	}

	createUsers := goose.NewGoMigration(
		1,
		&goose.GoFunc{
			RunTx: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(
					ctx,
					`
						CREATE TABLE IF NOT EXISTS `+db.table+` (
							id TEXT PRIMARY KEY,
							name TEXT NOT NULL,
							email TEXT NOT NULL,
							city TEXT NOT NULL,
							country TEXT NOT NULL
						)
					`,
				)
				return err
			},
		},
		&goose.GoFunc{
			RunTx: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+db.table)
				return err
			},
		},
	)

	provider, err := goose.NewProvider(
		goose.DialectCustom,
		db.database,
		nil,
		goose.WithStore(store),
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(createUsers),
	)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)

	return err
}

func (db *PostgresDB) PutUser(ctx context.Context, usr *models.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO `+db.table+` (id, name, email, city, country)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
					SET name = EXCLUDED.name,
						email = EXCLUDED.email,
						city = EXCLUDED.city,
						country = EXCLUDED.country
		`,
		usr.ID,
		usr.Name,
		usr.Email,
		usr.City,
		usr.Country,
	)

	return err
}

func (db *PostgresDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, name, email, city, country FROM `+db.table+` WHERE id = $1`,
		userID,
	)

	var usr models.User
	err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.City, &usr.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &usr, nil
}

// UpdateUser overwrites an existing row only.
func (db *PostgresDB) UpdateUser(ctx context.Context, usr *models.User) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE `+db.table+`
				SET name = $2, email = $3, city = $4, country = $5
				WHERE id = $1
		`,
		usr.ID,
		usr.Name,
		usr.Email,
		usr.City,
		usr.Country,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (db *PostgresDB) DeleteUser(ctx context.Context, userID string) error {
	_, err := db.database.ExecContext(ctx, `DELETE FROM `+db.table+` WHERE id = $1`, userID)

	return err
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.database.QueryContext(ctx, `SELECT id, name, email, city, country FROM `+db.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var usr models.User
		if err := rows.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.City, &usr.Country); err != nil {
			return nil, err
		}
		users = append(users, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *PostgresDB) Close() error {
	err := db.database.Close()
	if err != nil {
		return err
	}

	return nil
}

func (db *PostgresDB) resetDB(ctx context.Context, tableName string) error {
	_, err := db.database.ExecContext(
		ctx,
		`DROP TABLE IF EXISTS `+db.table+`, `+pgx.Identifier{migrationsTableName(tableName)}.Sanitize()+` CASCADE`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
