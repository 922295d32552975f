package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the default driver name with sequence function support
const SQLiteDriverName = "sqlite3_bitseq"

// NextValueFunction is the SQL function that advances a sequence by one.
const NextValueFunction = "get_next_sequence_value"

// RegisterSequenceDriver registers a go-sqlite3 driver whose connections
// expose get_next_sequence_value(name) backed by store.
// Usage: SELECT get_next_sequence_value('orders_seq')
func RegisterSequenceDriver(driverName string, store *SequenceStore) error {
	if slices.Contains(sql.Drivers(), driverName) {
		return fmt.Errorf("sql driver %q already registered", driverName)
	}

	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Not pure: every row must advance the sequence.
			return conn.RegisterFunc(NextValueFunction, nextValueFunc(store), false)
		},
	})
	return nil
}

func nextValueFunc(store *SequenceStore) func(name string) (int64, error) {
	return func(name string) (int64, error) {
		values, err := store.Advance(context.Background(), name, 1)
		if err != nil {
			return 0, err
		}
		return int64(values[0]), nil
	}
}
