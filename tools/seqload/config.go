package main

import (
	"fmt"
	"strings"
)

type Config struct {
	// Sequence source: a remote bitseq node, or a local Pebble store when Server is empty
	Server string
	Secret string
	Store  string

	Sequence  string
	FetchSize int
	Start     int64

	// Target database
	Driver string
	DSN    string
	Table  string

	// Load options
	Records      int
	Threads      int
	BatchSize    int
	CreateTable  bool
	DropExisting bool

	// Verify options
	Buckets int
}

func (c *Config) Validate() error {
	c.Server = strings.TrimSpace(c.Server)
	if c.Server == "" && c.Store == "" {
		return fmt.Errorf("either server or store must be set")
	}

	if c.Sequence == "" {
		return fmt.Errorf("sequence cannot be empty")
	}

	if c.FetchSize < 1 {
		return fmt.Errorf("fetch-size must be at least 1")
	}

	if c.Start < 0 {
		return fmt.Errorf("start must be non-negative")
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}

	if c.Records < 0 {
		return fmt.Errorf("records must be non-negative")
	}

	return c.ValidateTarget()
}

// ValidateTarget checks only the options the verify command reads.
func (c *Config) ValidateTarget() error {
	switch c.Driver {
	case "sqlite3", "mysql":
	default:
		return fmt.Errorf("driver must be sqlite3 or mysql, got %q", c.Driver)
	}

	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}

	if !validTableName.MatchString(c.Table) {
		return fmt.Errorf("invalid table name: %s", c.Table)
	}

	if c.Buckets < 1 || c.Buckets > 64 || c.Buckets&(c.Buckets-1) != 0 {
		return fmt.Errorf("buckets must be a power of two between 1 and 64")
	}

	return nil
}
