package app

import (
	"fmt"
	"io"

	"coinwatch/internal/config"
	"coinwatch/internal/storage"
)

// Migrate applies or reverts the PostgreSQL schema.
func (a *App) Migrate(down bool, out io.Writer) error {
	if a.Config.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires database.driver=%s, got %s", config.DriverPostgres, a.Config.Database.Driver)
	}

	version, err := storage.Migrate(a.Config.Database.DSN, down)
	if err != nil {
		return err
	}

	a.Logger.Info().Uint("version", version).Bool("down", down).Msg("migrations applied")
	fmt.Fprintf(out, "schema version: %d\n", version)
	return nil
}
