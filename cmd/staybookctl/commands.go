package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"staybook/internal/client"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/events"
	"staybook/internal/logging"
	"staybook/internal/models"
	"staybook/internal/report"
	"staybook/internal/repository"
	"staybook/internal/service"
	"staybook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

// env holds what every command opens.
type env struct {
	cfg    *config.Config
	db     *database.DB
	logger *zerolog.Logger
	closer io.Closer
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewDB(cfg.Database.Path, logger, database.WithBusyTimeout(cfg.Database.BusyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: logging.Component(logger, "ctl"), closer: closer}, nil
}

func (e *env) Close() {
	e.db.Close()
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

func migrateCmd() *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and upsert the hotel catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if catalogPath == "" {
				catalogPath = e.cfg.Catalog.Path
			}
			hotels, err := config.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}
			for i := range hotels {
				if err := e.db.UpsertHotel(cmd.Context(), &hotels[i]); err != nil {
					return fmt.Errorf("upsert hotel %d: %w", hotels[i].ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "hotel %d %q: %d room types\n", hotels[i].ID, hotels[i].Name, len(hotels[i].RoomTypes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (defaults to catalog.path from config)")
	return cmd
}

func reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Cancel pending bookings whose payment window has run out",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			rdb := redisFor(cmd.Context(), e)
			defer repository.Close(rdb)

			cache := repository.NewAvailabilityCache(rdb, e.logger)
			lifecycle := service.NewLifecycleService(e.db, cache, events.NewEventBus(), nil, e.logger)
			n, err := worker.NewReaper(e.db, lifecycle, e.cfg.Booking, nil, e.logger).ReapOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d expired bookings\n", n)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var hotelID int64
	var from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the settlement workbook of a hotel for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := models.ParseDay(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := models.ParseDay(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			path, totals, err := report.NewSettlementExporter(e.db, e.cfg.Exports.Path, e.logger).ExportToFile(cmd.Context(), hotelID, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bookings, gross %d, commission %d, payout %d, refunded %d\n",
				path, totals.Bookings, totals.Gross, totals.Commission, totals.Payout, totals.Refunded)
			return nil
		},
	}
	cmd.Flags().Int64Var(&hotelID, "hotel", 0, "hotel id")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("hotel")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Take a consistent copy of the database now",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			svc := database.NewBackupService(e.db, e.cfg.Backup, e.logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := svc.CleanupOldBackups()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d old snapshots removed)\n", path, removed)
			return nil
		},
	}
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and retry outbox events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "failed",
		Short: "Print events that exhausted their delivery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			failed, err := e.db.GetFailedEvents(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(failed)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "retry [event-id]",
		Short: "Put a failed event back into the delivery queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.RequeueEvent(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d requeued\n", id)
			return nil
		},
	})
	return cmd
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage per-day and per-hour inventory overrides",
	}

	var (
		roomTypeID   int64
		date, slot   string
		price        int64
		minStay      int
		closed, open bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Set price, closure or minimum stay of a night or an hour cell",
		Long:  "Held rooms are kept; only reservations and cancellations move the available counter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDay(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			if closed && open {
				return fmt.Errorf("--closed and --open are exclusive")
			}
			o := models.InventoryOverride{Date: d, SlotStart: slot, MinStayNights: minStay, IsClosed: closed}
			if cmd.Flags().Changed("price") {
				o.PriceOverride = &price
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			rdb := redisFor(cmd.Context(), e)
			defer repository.Close(rdb)

			cache := repository.NewAvailabilityCache(rdb, e.logger)
			availability := service.NewAvailabilityService(e.db, cache, e.cfg.Booking, nil, e.logger)
			if err := availability.SetOverride(cmd.Context(), roomTypeID, o); err != nil {
				return err
			}

			target := d.Format(models.DateLayout)
			if slot != "" {
				target += " " + slot
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room type %d %s: closed=%t\n", roomTypeID, target, o.IsClosed)
			return nil
		},
	}
	set.Flags().Int64Var(&roomTypeID, "room-type", 0, "room type id")
	set.Flags().StringVar(&date, "date", "", "night or day of the hour cell, YYYY-MM-DD")
	set.Flags().StringVar(&slot, "slot", "", "hour cell start, HH:MM; empty for the whole night")
	set.Flags().Int64Var(&price, "price", 0, "price override in minor units")
	set.Flags().IntVar(&minStay, "min-stay", 0, "minimum stay in nights")
	set.Flags().BoolVar(&closed, "closed", false, "stop selling")
	set.Flags().BoolVar(&open, "open", false, "resume selling")
	_ = set.MarkFlagRequired("room-type")
	_ = set.MarkFlagRequired("date")

	cmd.AddCommand(set)
	return cmd
}

// redisFor returns a connected client, or nil when redis is not configured
// or not reachable.
func redisFor(ctx context.Context, e *env) *redis.Client {
	if e.cfg.Redis.Address == "" {
		return nil
	}
	rdb := repository.NewRedisClient(e.cfg.Redis)
	if err := repository.Ping(ctx, rdb); err != nil {
		e.logger.Warn().Err(err).Msg("redis unavailable, cache invalidation is skipped")
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func checkCmd() *cobra.Command {
	var (
		serverURL, apiKey, apiExtra string
		hotelID, roomTypeID         int64
		checkIn, checkOut           string
		rooms, guests               int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask a running API for daily availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := models.ParseDay(checkIn)
			if err != nil {
				return fmt.Errorf("--check-in: %w", err)
			}
			q := models.DailyQuery{HotelID: hotelID, RoomTypeID: roomTypeID, CheckIn: in, NumRooms: rooms, NumGuests: guests}
			if checkOut != "" {
				if q.CheckOut, err = models.ParseDay(checkOut); err != nil {
					return fmt.Errorf("--check-out: %w", err)
				}
			}

			res, err := client.New(serverURL, apiKey, apiExtra).DailyAvailability(cmd.Context(), q)
			if err != nil {
				return err
			}
			for _, rt := range res.Available {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d left  total %d\n", rt.RoomTypeName, rt.MinAvailable, rt.TotalPrice)
			}
			for _, rt := range res.Unavailable {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", rt.RoomTypeName, rt.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "url", "http://localhost:8080", "API base url")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("STAYBOOK_API_KEY"), "API key")
	cmd.Flags().StringVar(&apiExtra, "api-extra", os.Getenv("STAYBOOK_API_EXTRA"), "API extra header")
	cmd.Flags().Int64Var(&hotelID, "hotel", 0, "hotel id")
	cmd.Flags().Int64Var(&roomTypeID, "room-type", 0, "room type id, 0 for all")
	cmd.Flags().StringVar(&checkIn, "check-in", "", "first night, YYYY-MM-DD")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "departure day, YYYY-MM-DD")
	cmd.Flags().IntVar(&rooms, "rooms", 1, "rooms")
	cmd.Flags().IntVar(&guests, "guests", 0, "guests")
	_ = cmd.MarkFlagRequired("hotel")
	_ = cmd.MarkFlagRequired("check-in")
	return cmd
}
