package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Database drivers are selected at runtime from the configured URL scheme.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	postgresSchemeConstant               = "postgres"
	postgresAlternativeSchemeConstant    = "postgresql"
	mysqlSchemeConstant                  = "mysql"
	sqliteSchemeConstant                 = "sqlite"
	sqliteAlternativeSchemeConstant      = "sqlite3"
	postgresDriverNameConstant           = "postgres"
	mysqlDriverNameConstant              = "mysql"
	sqliteDriverNameConstant             = "sqlite3"
	schemeSeparatorConstant              = "://"
	databaseURLMissingMessageConstant    = "database URL not configured"
	unsupportedSchemeTemplateConstant    = "unsupported database URL scheme: %s"
	listOperationNameConstant            = "project query"
	commitOperationNameConstant          = "batch commit"
	openOperationNameConstant            = "open"
	placeholderRuneConstant              = '?'
	postgresPlaceholderTemplateConstant  = "$%d"
	listUnmigratedProjectsQueryConstant  = "SELECT name, namespace, fork_owner, migration_region FROM projects WHERE migration_region IS NULL ORDER BY name"
	listMigratedProjectsQueryConstant    = "SELECT name, namespace, fork_owner, migration_region FROM projects WHERE migration_region IS NOT NULL ORDER BY name"
	stageMigrationRegionUpdateConstant   = "UPDATE projects SET migration_region = ? WHERE name = ? AND COALESCE(namespace, '') = ? AND COALESCE(fork_owner, '') = ?"
)

var errDatabaseURLMissing = errors.New(databaseURLMissingMessageConstant)

type stagedRegionAssignment struct {
	project Project
	region  string
}

// SQLProjectStore implements ProjectStore on top of database/sql.
//
// The driver is selected from the database URL scheme: postgres:// uses lib/pq,
// mysql:// uses go-sql-driver, and sqlite:// uses mattn/go-sqlite3 (useful for
// operator rehearsal runs against a registry snapshot).
type SQLProjectStore struct {
	database          *sql.DB
	driverName        string
	stagedAssignments []stagedRegionAssignment
}

// OpenSQLProjectStore opens a registry connection for the supplied database URL.
func OpenSQLProjectStore(databaseURL string) (*SQLProjectStore, error) {
	trimmedDatabaseURL := strings.TrimSpace(databaseURL)
	if len(trimmedDatabaseURL) == 0 {
		return nil, RegistryError{Operation: openOperationNameConstant, Cause: errDatabaseURLMissing}
	}

	driverName, dataSourceName, resolutionError := resolveDriver(trimmedDatabaseURL)
	if resolutionError != nil {
		return nil, RegistryError{Operation: openOperationNameConstant, Cause: resolutionError}
	}

	database, openError := sql.Open(driverName, dataSourceName)
	if openError != nil {
		return nil, RegistryError{Operation: openOperationNameConstant, Cause: openError}
	}

	store := &SQLProjectStore{
		database:   database,
		driverName: driverName,
	}

	return store, nil
}

// Close releases the underlying database connection.
func (store *SQLProjectStore) Close() error {
	return store.database.Close()
}

// ListUnmigratedProjects returns every project whose migration region is unset.
func (store *SQLProjectStore) ListUnmigratedProjects(executionContext context.Context) ([]Project, error) {
	return store.listProjects(executionContext, listUnmigratedProjectsQueryConstant)
}

// ListMigratedProjects returns every project whose migration region is set.
func (store *SQLProjectStore) ListMigratedProjects(executionContext context.Context) ([]Project, error) {
	return store.listProjects(executionContext, listMigratedProjectsQueryConstant)
}

// StageMigrationRegion records a pending region assignment without touching the database.
func (store *SQLProjectStore) StageMigrationRegion(_ context.Context, project Project, region string) error {
	store.stagedAssignments = append(store.stagedAssignments, stagedRegionAssignment{project: project, region: region})
	return nil
}

// Commit persists every staged assignment inside one transaction.
func (store *SQLProjectStore) Commit(executionContext context.Context) error {
	if len(store.stagedAssignments) == 0 {
		return nil
	}

	transaction, beginError := store.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return RegistryError{Operation: commitOperationNameConstant, Cause: beginError}
	}

	updateStatement := store.bindPlaceholders(stageMigrationRegionUpdateConstant)
	for _, assignment := range store.stagedAssignments {
		_, updateError := transaction.ExecContext(
			executionContext,
			updateStatement,
			assignment.region,
			assignment.project.Name,
			assignment.project.Namespace,
			assignment.project.ForkOwner,
		)
		if updateError != nil {
			rollbackError := transaction.Rollback()
			return RegistryError{Operation: commitOperationNameConstant, Cause: errors.Join(updateError, rollbackError)}
		}
	}

	if commitError := transaction.Commit(); commitError != nil {
		return RegistryError{Operation: commitOperationNameConstant, Cause: commitError}
	}

	store.stagedAssignments = nil
	return nil
}

func (store *SQLProjectStore) listProjects(executionContext context.Context, query string) ([]Project, error) {
	rows, queryError := store.database.QueryContext(executionContext, query)
	if queryError != nil {
		return nil, RegistryError{Operation: listOperationNameConstant, Cause: queryError}
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var projectName string
		var namespace sql.NullString
		var forkOwner sql.NullString
		var migrationRegion sql.NullString
		if scanError := rows.Scan(&projectName, &namespace, &forkOwner, &migrationRegion); scanError != nil {
			return nil, RegistryError{Operation: listOperationNameConstant, Cause: scanError}
		}
		projects = append(projects, Project{
			Name:            projectName,
			Namespace:       namespace.String,
			ForkOwner:       forkOwner.String,
			MigrationRegion: migrationRegion.String,
		})
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, RegistryError{Operation: listOperationNameConstant, Cause: rowsError}
	}

	return projects, nil
}

// bindPlaceholders rewrites ? placeholders into $n form for the postgres driver.
func (store *SQLProjectStore) bindPlaceholders(query string) string {
	if store.driverName != postgresDriverNameConstant {
		return query
	}

	var rewritten strings.Builder
	placeholderIndex := 0
	for _, character := range query {
		if character == placeholderRuneConstant {
			placeholderIndex++
			rewritten.WriteString(fmt.Sprintf(postgresPlaceholderTemplateConstant, placeholderIndex))
			continue
		}
		rewritten.WriteRune(character)
	}
	return rewritten.String()
}

func resolveDriver(databaseURL string) (string, string, error) {
	schemeSeparatorIndex := strings.Index(databaseURL, schemeSeparatorConstant)
	if schemeSeparatorIndex <= 0 {
		return "", "", fmt.Errorf(unsupportedSchemeTemplateConstant, databaseURL)
	}

	scheme := strings.ToLower(databaseURL[:schemeSeparatorIndex])
	remainder := databaseURL[schemeSeparatorIndex+len(schemeSeparatorConstant):]

	switch scheme {
	case postgresSchemeConstant, postgresAlternativeSchemeConstant:
		return postgresDriverNameConstant, databaseURL, nil
	case mysqlSchemeConstant:
		return mysqlDriverNameConstant, remainder, nil
	case sqliteSchemeConstant, sqliteAlternativeSchemeConstant:
		return sqliteDriverNameConstant, remainder, nil
	default:
		return "", "", fmt.Errorf(unsupportedSchemeTemplateConstant, scheme)
	}
}
