package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// dialect captures the SQL differences between PostgreSQL and MySQL
type dialect struct {
	// quoteChar wraps identifiers
	quoteChar string

	// numbered placeholders ($1, $2) instead of ?
	numbered bool

	// tableExists counts tables named by the single parameter in the current schema
	tableExists string

	// indexExists counts indexes named (table, index). Empty when CREATE INDEX
	// supports IF NOT EXISTS.
	indexExists string

	// columnType selects the data_type of (table, column) in the current schema
	columnType string

	// ifNotExists is inserted after CREATE INDEX when supported
	ifNotExists bool
}

var postgresDialect = dialect{
	quoteChar:   `"`,
	numbered:    true,
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`,
	columnType:  `SELECT data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
	ifNotExists: true,
}

var mysqlDialect = dialect{
	quoteChar:   "`",
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
	indexExists: `SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`,
	columnType:  `SELECT data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
}

// temporalType reports whether an information_schema data_type holds dates.
func temporalType(dataType string) bool {
	t := strings.ToLower(strings.TrimSpace(dataType))
	return t == "date" || strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "datetime")
}

func dialectFor(driver Driver) (dialect, error) {
	switch driver {
	case DriverPostgres:
		return postgresDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: unsupported database driver %q", domain.ErrInvalidInput, driver)
	}
}

// quote returns a quoted identifier. Callers validate names first.
func (d dialect) quote(name string) string {
	return d.quoteChar + name + d.quoteChar
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d dialect) createIndex(table, name string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.quote(c)
	}
	var b strings.Builder
	b.WriteString("CREATE INDEX ")
	if d.ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s ON %s (%s)", d.quote(name), d.quote(table), strings.Join(quoted, ", "))
	return b.String()
}

// validate rejects names that cannot be spliced into SQL safely.
func validate(names ...string) error {
	for _, name := range names {
		if !domain.ValidIdentifier(name) {
			return fmt.Errorf("%w: invalid identifier %q", domain.ErrInvalidInput, name)
		}
	}
	return nil
}
