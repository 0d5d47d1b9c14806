package main

import (
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/outbox"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/seed"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load providers, patients and appointments from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, logger := serviceLogger()

			fixture, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			enc, err := phiEncryptor()
			if err != nil {
				return err
			}

			providers := storage.NewProviderRepository(pool)
			svc := booking.NewService(pool, providers, storage.NewAppointmentRepository(pool), outbox.NewRepository(), logger)
			res, err := seed.NewSeeder(providers, storage.NewPatientRepository(pool, enc), svc, logger).Apply(ctx, fixture)
			if err != nil {
				return err
			}
			logger.Info("seed complete",
				"providers", res.Providers,
				"patients", res.Patients,
				"appointments", res.Appointments,
				"skipped", res.Skipped,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "services/booking-service/testdata/seed.yaml", "fixture to load")
	return cmd
}
