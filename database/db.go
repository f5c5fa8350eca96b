package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/settld-io/settld/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createSettlementTable(db)
	if err != nil {
		return nil, err
	}
	err = createMatchOutcomeTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createSettlementTable creates a PostgreSQL table for the Settlement struct.
// Settlements are append-only: corrections require a new run, not an edit.
func createSettlementTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settlements (
			id SERIAL PRIMARY KEY,
			settlement_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			provider TEXT,
			cycle TEXT NOT NULL,
			total_fees BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createMatchOutcomeTable creates a PostgreSQL table for per-row match
// linkages. The partial unique index enforces the at-most-one-match
// invariant at the storage layer too.
func createMatchOutcomeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS match_outcomes (
			id SERIAL PRIMARY KEY,
			settlement_id TEXT NOT NULL REFERENCES settlements(settlement_id),
			row_index INT NOT NULL,
			payment_id TEXT,
			score NUMERIC NOT NULL,
			classification TEXT NOT NULL,
			reasons TEXT[],
			UNIQUE (settlement_id, row_index)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_match_outcomes_payment
		ON match_outcomes (settlement_id, payment_id)
		WHERE payment_id IS NOT NULL
	`)
	return err
}
