package kiosk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/models"
)

const (
	employeesKey  = "employees"
	attendanceKey = "attendanceRecords"
)

// Store persists the mirror on the kiosk so it can boot without the relay.
// Whatever it holds may be stale.
type Store struct {
	db *badger.DB
}

// OpenStore opens the store in dir, or in memory when dir is empty
func OpenStore(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.
		WithLogger(badgerLogger{log.With().Str("component", "kiosk-store").Logger()}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open kiosk store: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads both collections. Missing or unreadable entries come back empty.
func (s *Store) Load() ([]models.Employee, []models.AttendanceRecord, error) {
	employees := []models.Employee{}
	records := []models.AttendanceRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, employeesKey, &employees); err != nil {
			return err
		}
		return getJSON(txn, attendanceKey, &records)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load kiosk store: %w", err)
	}
	return employees, records, nil
}

// Save writes both collections in one transaction
func (s *Store) Save(employees []models.Employee, records []models.AttendanceRecord) error {
	rosterData, err := json.Marshal(models.CloneEmployees(employees))
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	logData, err := json.Marshal(models.CloneAttendance(records))
	if err != nil {
		return fmt.Errorf("marshal attendance log: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(employeesKey), rosterData); err != nil {
			return err
		}
		return txn.Set([]byte(attendanceKey), logData)
	})
	if err != nil {
		return fmt.Errorf("save kiosk store: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key string, dst interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, dst); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("discarding unreadable stored collection")
		}
		return nil
	})
}

// badgerLogger routes badger's printf logging through zerolog
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
