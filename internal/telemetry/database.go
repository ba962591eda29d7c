package telemetry

import (
	"fmt"
	"net/url"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented postgres pool. When schema is set it is sent
// as the search_path startup parameter so every pooled connection gets it.
func OpenDB(dsn, schema string) (*sqlx.DB, error) {
	if schema != "" {
		withPath, err := WithSearchPath(dsn, schema)
		if err != nil {
			return nil, err
		}
		dsn = withPath
	}

	db, err := otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	return sqlx.NewDb(db, "postgres"), nil
}

func WithSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("postgres url must be in URL form: %q", dsn)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
