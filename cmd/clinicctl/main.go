package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matheus3301/clinic/internal/client"
	"github.com/matheus3301/clinic/internal/clinic"
	"github.com/matheus3301/clinic/internal/config"
	"github.com/matheus3301/clinic/internal/daemon"
	"github.com/matheus3301/clinic/internal/lock"
	"github.com/matheus3301/clinic/internal/logging"
	"github.com/matheus3301/clinic/internal/store"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $CLINIC_HOME/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Resolve(*configFlag)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, cfg, *jsonFlag)
	case "migrate":
		withManager(cfg, func(m *store.Manager) { cmdMigrate(ctx, m, *jsonFlag) })
	case "check":
		withManager(cfg, func(m *store.Manager) { cmdCheck(ctx, m, *jsonFlag) })
	case "medicines":
		withManager(cfg, func(m *store.Manager) { cmdMedicines(ctx, m, args[1:], *jsonFlag) })
	case "patients":
		withManager(cfg, func(m *store.Manager) { cmdPatients(ctx, m, *jsonFlag) })
	case "appointments":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: clinicctl appointments <patient-id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid patient id %q", args[1]))
		}
		withManager(cfg, func(m *store.Manager) { cmdAppointments(ctx, m, id, *jsonFlag) })
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: clinicctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                      Ask the running daemon for database health")
	fmt.Fprintln(os.Stderr, "  migrate                     Open the database and apply pending migrations")
	fmt.Fprintln(os.Stderr, "  check                       Show connection settings and state")
	fmt.Fprintln(os.Stderr, "  medicines [search <term>]   List or search medicines")
	fmt.Fprintln(os.Stderr, "  patients                    List patients")
	fmt.Fprintln(os.Stderr, "  appointments <patient-id>   List a patient's appointments")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands other than status open the database directly and refuse to run")
	fmt.Fprintln(os.Stderr, "while clinicd holds it.")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// withManager runs fn with a manager for the configured database while
// holding the data directory lock.
func withManager(cfg *config.Config, fn func(*store.Manager)) {
	logger, err := logging.NewConsole("clinicctl", "warn")
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	lk, err := lock.Acquire(filepath.Dir(cfg.DBPath()))
	var held *lock.LockHeldError
	if errors.As(err, &held) {
		fatal(fmt.Errorf("database in use by clinicd (PID %d); use 'clinicctl status'", held.PID))
	}
	if err != nil {
		fatal(err)
	}
	defer func() { _ = lk.Release() }()

	m := store.NewManager(daemon.StoreOptions(cfg), logger, nil)
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}()
	fn(m)
}

func cmdStatus(ctx context.Context, cfg *config.Config, jsonOut bool) {
	socket := cfg.SocketPath()
	c, err := client.New(socket)
	if err != nil {
		fatal(fmt.Errorf("cannot connect to daemon: %w", err))
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := c.DatabaseStatus(ctx)
	if err != nil {
		fatal(fmt.Errorf("daemon not reachable at %s: %w", socket, err))
	}
	if jsonOut {
		outputJSON(map[string]string{"socket": socket, "status": st.String()})
		return
	}
	fmt.Printf("Socket:   %s\n", socket)
	fmt.Printf("Database: %s\n", st)
}

func cmdMigrate(ctx context.Context, m *store.Manager, jsonOut bool) {
	if _, err := m.GetConnection(ctx); err != nil {
		fatal(err)
	}
	res := m.Migrations()
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Database: %s\n", m.Path())
	fmt.Printf("Version:  %d\n", res.Version)
	if len(res.Applied) == 0 {
		fmt.Println("Applied:  none (up to date)")
		return
	}
	for _, name := range res.Applied {
		fmt.Printf("Applied:  %s\n", name)
	}
}

func cmdCheck(ctx context.Context, m *store.Manager, jsonOut bool) {
	if _, err := m.GetConnection(ctx); err != nil {
		fatal(err)
	}
	report := map[string]string{
		"path":  m.Path(),
		"state": string(m.State()),
	}
	for _, pragma := range []string{"foreign_keys", "journal_mode", "synchronous", "cache_size", "temp_store", "busy_timeout"} {
		row, err := m.QueryOne(ctx, "PRAGMA "+pragma)
		if err != nil {
			fatal(err)
		}
		for _, v := range row {
			report[pragma] = fmt.Sprint(v)
		}
	}
	if err := m.HealthCheck(ctx); err != nil {
		report["health"] = err.Error()
	} else {
		report["health"] = "ok"
	}
	if jsonOut {
		outputJSON(report)
		return
	}
	for _, key := range []string{"path", "state", "health", "foreign_keys", "journal_mode", "synchronous", "cache_size", "temp_store", "busy_timeout"} {
		fmt.Printf("%-13s %s\n", key+":", report[key])
	}
}

func cmdMedicines(ctx context.Context, m *store.Manager, args []string, jsonOut bool) {
	repo := clinic.NewMedicines(m)
	var (
		list []clinic.Medicine
		err  error
	)
	if len(args) >= 2 && args[0] == "search" {
		list, err = repo.Search(ctx, args[1])
	} else {
		list, err = repo.List(ctx)
	}
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	for _, med := range list {
		fmt.Printf("%5d  %-30s %-12s stock=%d\n", med.ID, med.Name, med.Dosage, med.Stock)
	}
}

func cmdPatients(ctx context.Context, m *store.Manager, jsonOut bool) {
	list, err := clinic.NewPatients(m).List(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	for _, p := range list {
		last := "-"
		if p.LastVisit > 0 {
			last = time.Unix(p.LastVisit, 0).Format(time.DateOnly)
		}
		fmt.Printf("%5d  %-30s %-15s last visit %s\n", p.ID, p.Name, p.Phone, last)
	}
}

func cmdAppointments(ctx context.Context, m *store.Manager, patientID int64, jsonOut bool) {
	if _, err := clinic.NewPatients(m).Get(ctx, patientID); err != nil {
		fatal(err)
	}
	list, err := clinic.NewAppointments(m).ListByPatient(ctx, patientID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	for _, a := range list {
		fmt.Printf("%s  %s  %s\n", time.Unix(a.ScheduledAt, 0).Format(time.DateTime), a.Reference, a.Notes)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}
