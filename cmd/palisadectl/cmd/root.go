// Package cmd implements the palisadectl CLI commands.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/palisadehq/palisade/internal/config"
	"github.com/palisadehq/palisade/internal/version"
	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/httpauth"
	"github.com/palisadehq/palisade/pkg/store"
)

var (
	// Global flags
	dbPath       string
	configPath   string
	snapshotPath string
	realm        string

	// Shared instances
	secStore   *store.Store
	cfg        *config.Config
	digestSync *httpauth.Authenticator
)

var rootCmd = &cobra.Command{
	Use:   "palisadectl",
	Short: "Palisade security administration CLI",
	Long: `palisadectl manages the Palisade security layer.

It provides commands to manage users, roles, permissions and secured
paths, and to toggle, warm or clear the security model cache.`,
	Version:      version.String(),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		path := dbPath
		if path == "" {
			path = store.DefaultPath()
		}

		var err error
		secStore, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		digestSync = wireDigestSync(secStore, realm)

		cfgPath := configPath
		if cfgPath == "" {
			cfgPath = filepath.Join(filepath.Dir(path), "config.yaml")
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if snapshotPath == "" {
			snapshotPath = filepath.Join(filepath.Dir(path), "security.snapshot.json")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if digestSync != nil {
			digestSync.Close()
		}
		if secStore != nil {
			secStore.Close()
		}
	},
}

// wireDigestSync subscribes a digest authenticator to the store's password
// change events. Password mutations (user add, user passwd) publish while the
// plaintext is still in hand; the subscriber writes the derived A1 material
// onto the user before the record is saved. The realm must match the server's,
// otherwise digest logins verify against the wrong hash.
func wireDigestSync(s *store.Store, realm string) *httpauth.Authenticator {
	bus := events.NewBus()
	s.SetBus(bus)
	return httpauth.NewAuthenticator(realm, httpauth.NewMemoryNonceStore(), s, s,
		httpauth.WithBus(bus))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.local/share/palisade/palisade.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config path (default: next to the database)")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "security snapshot path (default: next to the database)")
	rootCmd.PersistentFlags().StringVar(&realm, "realm", "palisade", "HTTP authentication realm (must match the server)")
}
