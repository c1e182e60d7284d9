package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/attest"
	"github.com/p2einferno/inferno-checkin/checkin"
	"github.com/p2einferno/inferno-checkin/config"
	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/quests"
	"github.com/p2einferno/inferno-checkin/routes"
	"github.com/p2einferno/inferno-checkin/schema"
	"github.com/p2einferno/inferno-checkin/streak"
	"github.com/p2einferno/inferno-checkin/utils"
	"github.com/p2einferno/inferno-checkin/workers"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inferno-checkin",
		Short: "Daily check-in and attestation service",
	}
	rootCmd.PersistentFlags().StringVar(&config.File, "config", config.File, "TOML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(sessionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// boot loads configuration, the logger and the migrated database.
func boot() (config.AppConfig, *gorm.DB, error) {
	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		return cfg, nil, err
	}
	return cfg, config.InitDatabase(models.All()...), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := boot()
			if err != nil {
				return err
			}
			defer utils.Logger.Sync()

			svc, mem, err := buildServices(cfg, db)
			if err != nil {
				return err
			}
			r := routes.SetupRouter(db, svc)

			writeTimeout := max(utils.DefaultWriteTimeout, cfg.CommitTimeout+15*time.Second)
			srv := utils.NewServer(":"+cfg.AppPort, r, utils.DefaultReadTimeout, writeTimeout)

			if cfg.JobsEnabled {
				sched, err := workers.New(workers.Config{
					CachePurgeInterval: cfg.CachePurgeInterval,
					UnattestedInterval: cfg.UnattestedInterval,
					ReportUnattested:   cfg.EASEnabled,
				}, db, mem, utils.Logger.Named("workers"))
				if err != nil {
					return err
				}
				sched.Start()
				srv.OnShutdown(func() {
					if err := sched.Stop(); err != nil {
						utils.Sugar.Warnf("scheduler shutdown: %v", err)
					}
				})
			}

			utils.Sugar.Infof("Starting server on port %s (eas=%v, mode=%s)", cfg.AppPort, cfg.EASEnabled, modeName(cfg))
			return srv.Run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := boot()
			if err == nil {
				utils.Sugar.Info("migrations applied")
			}
			return err
		},
	}
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect attestation schemas",
	}

	var network string
	resolve := &cobra.Command{
		Use:   "resolve <schema-key>",
		Short: "Print the current schema UID for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := boot()
			if err != nil {
				return err
			}
			if network == "" {
				network = cfg.EASDefaultNetwork
			}
			entry, ok, err := schema.NewResolver(db, nil, 0, utils.Logger).ResolveEntry(cmd.Context(), args[0], network)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("schema %q not configured on %s", args[0], network)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", entry.UID, entry.Definition)
			if derived := schema.DeriveUID(entry.Definition, entry.Resolver, entry.Revocable); !schema.SameUID(derived, entry.UID) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: definition derives %s\n", derived)
			}
			return nil
		},
	}
	resolve.Flags().StringVar(&network, "network", "", "network name (default from config)")

	var resolver string
	var revocable bool
	derive := &cobra.Command{
		Use:   "derive <definition>",
		Short: "Compute the registry UID for a schema definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), schema.DeriveUID(args[0], resolver, revocable))
			return nil
		},
	}
	derive.Flags().StringVar(&resolver, "resolver", "", "resolver contract address")
	derive.Flags().BoolVar(&revocable, "revocable", true, "whether attestations can be revoked")

	cmd.AddCommand(resolve, derive)
	return cmd
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage authenticated sessions",
	}

	var ttl time.Duration
	revoke := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Reject tokens carrying a session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				return errors.New("--for must be positive")
			}
			cfg := config.Load()
			if err := utils.InitLogger(cfg); err != nil {
				return err
			}
			// the in-process fallback would die with this command
			if utils.GetRedis() == nil {
				return errors.New("session revocation needs the redis instance shared with the API servers")
			}
			until := time.Now().Add(ttl)
			if err := utils.RevokeSession(args[0], until); err != nil {
				return fmt.Errorf("revoke %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s revoked until %s\n", args[0], until.UTC().Format(time.RFC3339))
			return nil
		},
	}
	revoke.Flags().DurationVar(&ttl, "for", 24*time.Hour, "how long to reject the session; cover the token lifetime")

	cmd.AddCommand(revoke)
	return cmd
}

// buildServices assembles the domain services. The returned memory cache is the
// resolver's local tier, purged by the scheduler.
func buildServices(cfg config.AppConfig, db *gorm.DB) (routes.Services, *schema.MemoryCache, error) {
	log := utils.Logger

	svc, err := checkin.NewService(db, xpTable(cfg), checkin.WithLogger(log.Named("checkin")))
	if err != nil {
		return routes.Services{}, nil, err
	}

	mem := schema.NewMemoryCache(nil)
	var cache schema.Cache = mem
	var guard attest.Guard = attest.NewMemoryGuard()
	if rc := utils.GetRedis(); rc != nil {
		cache = schema.Tiered{Front: mem, Back: schema.NewRedisCache(rc, log.Named("schema")), TTL: cfg.SchemaCacheTTL}
		guard = attest.NewRedisGuard(rc)
	}
	resolver := schema.NewResolver(db, cache, cfg.SchemaCacheTTL, log.Named("schema"))

	var relayer attest.Relayer = attest.NoRelayer()
	if cfg.EASEnabled {
		eth, err := attest.NewEthRelayer(cfg.RelayerPrivateKey, cfg.EASNetworks, log.Named("relayer"))
		switch {
		case errors.Is(err, attest.ErrRelayerNotConfigured):
			log.Warn("EAS enabled without EAS_RELAYER_PRIVATE_KEY; commits will fail as misconfigured")
		case err != nil:
			return routes.Services{}, nil, err
		default:
			log.Info("relayer ready", zap.String("address", eth.Address().Hex()))
			relayer = eth
		}
	}

	chainIDs := make(map[string]int64, len(cfg.EASNetworks))
	for name, n := range cfg.EASNetworks {
		chainIDs[name] = n.ChainID
	}
	committer := attest.NewCommitter(resolver, relayer, attest.NewTargetStore(db),
		attest.WithGuard(guard),
		attest.WithTimeout(cfg.CommitTimeout),
		attest.WithChainIDs(chainIDs),
		attest.WithLogger(log.Named("attest")),
	)

	return routes.Services{
		Checkin:   svc,
		Committer: committer,
		Resolver:  resolver,
		Quests:    quests.NewDefaultRegistry(svc),
	}, mem, nil
}

func xpTable(cfg config.AppConfig) streak.XPTable {
	t := streak.XPTable{
		BaseXP:       int64(cfg.CheckinBaseXP),
		BonusPerDay:  int64(cfg.CheckinBonusPerDay),
		MaxBonusDays: cfg.CheckinMaxBonusDays,
	}
	for _, tier := range cfg.CheckinTiers {
		t.Tiers = append(t.Tiers, streak.Tier{Name: tier.Name, MinStreak: tier.MinStreak, Multiplier: tier.Multiplier})
	}
	return t
}

func modeName(cfg config.AppConfig) string {
	if cfg.EASGracefulDegrade {
		return "graceful-degrade"
	}
	return "fail-closed"
}
