package store

// Config holds configuration for the Store.
type Config struct {
	// BoardsTable is the name of the board metadata table.
	// Default: "Boards"
	BoardsTable string

	// SquaresTable is the name of the squares table.
	// Default: "Squares"
	SquaresTable string

	// ClaimsTable is the name of the claims table.
	// Default: "Claims"
	ClaimsTable string
}

// DefaultConfig returns the default table names.
func DefaultConfig() Config {
	return Config{
		BoardsTable:  "Boards",
		SquaresTable: "Squares",
		ClaimsTable:  "Claims",
	}
}

// validate fills in defaults for empty table names.
func (c *Config) validate() {
	if c.BoardsTable == "" {
		c.BoardsTable = "Boards"
	}
	if c.SquaresTable == "" {
		c.SquaresTable = "Squares"
	}
	if c.ClaimsTable == "" {
		c.ClaimsTable = "Claims"
	}
}
