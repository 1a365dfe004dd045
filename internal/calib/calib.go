// Package calib loads optional per-run calibration data — per-chip affine
// transforms and the trigger frequency — from a MySQL run database, the
// same shape as the teacher's channel-mapping/Huffman-code tables.
package calib

import (
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"golang.org/x/exp/maps"

	"github.com/next-exp/tpx3pipe/internal/logging"
	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// Connect opens the run database, mirroring the teacher's
// ConnectToDatabase but parameterized on chip-transform calibration instead
// of PMT/SiPM channel mapping.
func Connect(user, pass, host, dbname string) (*sqlx.DB, error) {
	dbURI := fmt.Sprintf("%s:%s@(%s:3306)/%s?parseTime=true", user, pass, host, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	if err != nil {
		return nil, &ErrConnect{DBName: dbname, Err: err}
	}
	return db, nil
}

// ErrConnect represents a failure to open the calibration database.
type ErrConnect struct {
	DBName string
	Err    error
}

func (e *ErrConnect) Error() string {
	return fmt.Sprintf("error connecting to calibration database %q: %v", e.DBName, e.Err)
}

// ErrQuery represents a failure querying the calibration database.
type ErrQuery struct {
	Table string
	Err   error
}

func (e *ErrQuery) Error() string {
	return fmt.Sprintf("error querying calibration table %q: %v", e.Table, e.Err)
}

type chipTransformRow struct {
	ChipID int     `db:"ChipID"`
	A00    float64 `db:"A00"`
	A01    float64 `db:"A01"`
	A10    float64 `db:"A10"`
	A11    float64 `db:"A11"`
	Tx     float64 `db:"Tx"`
	Ty     float64 `db:"Ty"`
}

// LoadChipTransforms reads the per-chip affine transform table for a given
// run number, the "chip_transforms" configuration option's database-backed
// source (spec §6).
func LoadChipTransforms(db *sqlx.DB, runNumber int, log logging.Logger) (map[uint8]tpx3.AffineTransform, error) {
	query := fmt.Sprintf(
		"SELECT ChipID, A00, A01, A10, A11, Tx, Ty FROM ChipTransforms WHERE MinRun <= %d AND MaxRun >= %d",
		runNumber, runNumber,
	)
	rows, err := db.Queryx(query)
	if err != nil {
		return nil, &ErrQuery{Table: "ChipTransforms", Err: err}
	}

	transforms := map[uint8]tpx3.AffineTransform{}
	for rows.Next() {
		var row chipTransformRow
		if err := rows.StructScan(&row); err != nil {
			return nil, &ErrQuery{Table: "ChipTransforms", Err: err}
		}
		transforms[uint8(row.ChipID)] = tpx3.AffineTransform{
			A00: row.A00, A01: row.A01,
			A10: row.A10, A11: row.A11,
			Tx: row.Tx, Ty: row.Ty,
		}
	}

	if log != nil {
		chipIDs := maps.Keys(transforms)
		sort.Slice(chipIDs, func(i, j int) bool { return chipIDs[i] < chipIDs[j] })
		log.Info(fmt.Sprintf("loaded %d chip transforms for run %d: %v", len(transforms), runNumber, chipIDs), "calib")
	}
	return transforms, nil
}

type triggerFrequencyRow struct {
	FrequencyHz float64 `db:"FrequencyHz"`
}

// LoadTriggerFrequency reads the calibrated trigger frequency for a run, in
// Hz, used to derive the trigger period in 25 ns ticks (spec §6
// "trigger_frequency_hz").
func LoadTriggerFrequency(db *sqlx.DB, runNumber int) (float64, error) {
	query := fmt.Sprintf(
		"SELECT FrequencyHz FROM TriggerFrequency WHERE MinRun <= %d AND MaxRun >= %d ORDER BY MinRun DESC LIMIT 1",
		runNumber, runNumber,
	)
	var row triggerFrequencyRow
	if err := db.Get(&row, query); err != nil {
		return 0, &ErrQuery{Table: "TriggerFrequency", Err: err}
	}
	return row.FrequencyHz, nil
}
