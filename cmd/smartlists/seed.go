package cmd

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toozej/smartlists/internal/seed"
)

// newSeedCmd creates the seed command for creating the default smart playlists.
func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default smart playlists",
		Long: `Create the default smart playlists from a TOML file (SEED_FILE or --file)
or from the built-in set. Playlists whose name already exists are left alone,
and a definition set that was already seeded is not applied again.`,
		Args: cobra.NoArgs,
		Run:  runSeed,
	}

	cmd.Flags().String("file", "", "TOML file of smart playlist definitions (overrides SEED_FILE)")
	cmd.Flags().Bool("print", false, "Print the definitions as TOML instead of applying them")

	return cmd
}

// runSeed executes the seed command.
func runSeed(cmd *cobra.Command, args []string) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		conf.Seed.File = file
	}

	if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
		defs, _, err := seed.New(nil, conf.Seed.File, log.StandardLogger()).Load()
		if err != nil {
			log.WithError(err).Error("Failed to load seed definitions")
			return
		}
		data, err := seed.Encode(defs)
		if err != nil {
			log.WithError(err).Error("Failed to encode seed definitions")
			return
		}
		_, _ = os.Stdout.Write(data)
		return
	}

	ctx, stop := signalContext()
	defer stop()

	s, err := initializeAllServices(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
		return
	}
	defer s.Close(context.Background())

	job, joined, err := s.seeder.Enqueue(ctx, s.jobs)
	if err != nil {
		log.WithError(err).Error("Failed to start seeding")
		return
	}
	if joined && job.State.Terminal() {
		log.WithField("job_id", job.ID).Info("These definitions were already seeded")
	}

	done, err := s.jobs.Wait(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("Seeding did not finish")
		return
	}
	printJob(os.Stdout, done)
}
