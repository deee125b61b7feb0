package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/microsoft/go-mssqldb/azuread" // Azure AD authentication

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
)

// driverFor maps a URL scheme to the database/sql driver name.
// azuresql:// URLs authenticate through Azure AD (fedauth parameter).
func driverFor(scheme string) string {
	if scheme == "azuresql" {
		return azuread.DriverName
	}
	return "sqlserver"
}

// connectionString rewrites the URL scheme to the sqlserver:// form the driver expects.
func connectionString(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid SQL Server URL")
	}
	driver := driverFor(u.Scheme)
	u.Scheme = "sqlserver"
	return driver, u.String(), nil
}

// NewEngine opens a SQL Server pool for a sqlserver://, mssql:// or azuresql:// URL.
func NewEngine(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (*datasource.SQLEngine, error) {
	driver, connStr, err := connectionString(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return datasource.NewSQLEngine(name, "mssql", orm.DialectMSSQL, db, opts), nil
}
