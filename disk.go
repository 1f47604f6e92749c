package heom

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableADOs = "ados"
	tableMeta = "meta"
)

// WriteADOs serializes a list of hierarchy snapshots to a sqlite file.
// A pre-existing file at path is a fatal precondition error.
func WriteADOs(path string, snapshots []*ADOs) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("file exists %s", path)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "")
	}
	if len(snapshots) == 0 {
		return errors.Errorf("no snapshots")
	}

	db, err := newADOsDB(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()

	a0 := snapshots[0]
	sqlStr := fmt.Sprintf(`INSERT INTO %s (dim, n, parity, snapshots) VALUES (?, ?, ?, ?)`, tableMeta)
	if _, err := db.ExecContext(ctx, sqlStr, a0.dim, a0.n, int(a0.parity), len(snapshots)); err != nil {
		return errors.Wrap(err, "")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`INSERT INTO %s (snap, pos, re, im) VALUES (?, ?, ?, ?)`, tableADOs)
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	for si, a := range snapshots {
		if a.dim != a0.dim || a.n != a0.n {
			tx.Rollback()
			return errors.Errorf("snapshot %d: (%d %d), expected (%d %d)", si, a.dim, a.n, a0.dim, a0.n)
		}
		for pos, v := range a.Data {
			if v == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, si, pos, real(v), imag(v)); err != nil {
				tx.Rollback()
				return errors.Wrap(err, "")
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadADOs deserializes the hierarchy snapshots written by WriteADOs.
func ReadADOs(path string) ([]*ADOs, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "")
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()

	var dim, n, parity, count int
	sqlStr := fmt.Sprintf(`SELECT dim, n, parity, snapshots FROM %s`, tableMeta)
	if err := db.QueryRowContext(ctx, sqlStr).Scan(&dim, &n, &parity, &count); err != nil {
		return nil, errors.Wrap(err, "")
	}

	snapshots := make([]*ADOs, count)
	for i := range snapshots {
		snapshots[i] = newADOs(make([]complex128, n*dim*dim), dim, n, Parity(parity))
	}

	sqlStr = fmt.Sprintf(`SELECT snap, pos, re, im FROM %s`, tableADOs)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var snap, pos int
		var re, im float64
		if err := rows.Scan(&snap, &pos, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if snap < 0 || snap >= count || pos < 0 || pos >= n*dim*dim {
			return nil, errors.Errorf("entry (%d %d) out of (%d %d)", snap, pos, count, n*dim*dim)
		}
		snapshots[snap].Data[pos] = complex(re, im)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return snapshots, nil
}

func newADOsDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareADOsDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return db, nil
}

func prepareADOsDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE %s (snap INTEGER, pos INTEGER, re REAL, im REAL, PRIMARY KEY (snap, pos)) STRICT`, tableADOs)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE %s (dim INTEGER, n INTEGER, parity INTEGER, snapshots INTEGER) STRICT`, tableMeta)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
