package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/crmbilling/internal/payment/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	reminderdomain "github.com/smallbiznis/crmbilling/internal/reminder/domain"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the billing engine owns, in dependency order.
func Models() []any {
	return []any{
		&plandomain.Package{},
		&companydomain.Company{},
		&taxdomain.Settings{},
		&invoicedomain.Sequence{},
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&reminderdomain.Reminder{},
		&activitydomain.SystemLog{},
	}
}

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models. SQLite has no golang-migrate
// driver without cgo, so local and embedded databases use this path.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
