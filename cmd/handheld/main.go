package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/handheld/internal/api"
	"github.com/banshee-data/handheld/internal/config"
	"github.com/banshee-data/handheld/internal/db"
	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/network"
	"github.com/banshee-data/handheld/internal/orchestrator"
	"github.com/banshee-data/handheld/internal/sensor"
	"github.com/banshee-data/handheld/internal/serialmux"
	"github.com/banshee-data/handheld/internal/timeutil"
	"github.com/banshee-data/handheld/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run with a simulated IMU and network")
	listen     = flag.String("listen", ":8080", "Admin API listen address (empty to disable)")
	port       = flag.String("port", "/dev/ttyS0", "IMU serial port (ignored in dev mode; empty disables the sensor)")
	baud       = flag.Int("baud", serialmux.DefaultBaudRate, "IMU baud rate")
	configFile = flag.String("config", config.DefaultConfigPath, "Path to the JSON tuning file")
	dbFile     = flag.String("db", "handheld.db", "Journal database path (empty to disable)")
	iface      = flag.String("iface", "wlan0", "Wireless interface managed through nmcli")
	simNetwork = flag.Bool("sim-network", false, "Use the simulated network transport (implied by -dev)")
	headless   = flag.Bool("headless", false, "Do not draw screens on stdout")
	apiAddr    = flag.String("api", "http://localhost:8080", "Admin API base URL used by the ctl subcommand")
)

// simulatedNetworks is the access point table of the simulated transport.
var simulatedNetworks = map[string]string{
	"workshop": "hunter22",
	"cafe":     "",
}

func main() {
	flag.Usage = usage
	flag.Parse()

	switch flag.Arg(0) {
	case "migrate":
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbFile, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	case "ctl":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runCtl(ctx, api.NewClient(*apiAddr, nil), flag.Args()[1:], os.Stdout); err != nil {
			log.Fatalf("ctl: %v", err)
		}
		return
	case "version":
		fmt.Println(version.String())
		return
	case "":
	default:
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("handheld: %v", err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: handheld [flags] [command]

Commands:
  (none)    run the device
  migrate   manage the journal schema (see "handheld migrate help")
  ctl       talk to a running device's admin API (see "handheld ctl help")
  version   print build information

Flags:
`)
	flag.PrintDefaults()
}

// openSerial picks the IMU transport: simulated in dev mode, disabled when no
// port is given, otherwise the real UART.
func openSerial(cfg *config.Config) (serialmux.SerialMuxInterface, error) {
	switch {
	case *devMode:
		return serialmux.NewSimulatedSerialMux(cfg.GetSensorPollInterval()), nil
	case *port == "":
		return serialmux.NewDisabledSerialMux(), nil
	default:
		return serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud, ReadTimeout: time.Second})
	}
}

func networkTransport() network.TransportFactory {
	if *devMode || *simNetwork {
		return func() (network.Transport, error) {
			return network.NewSimTransport(simulatedNetworks), nil
		}
	}
	return func() (network.Transport, error) {
		return network.NewNmcliTransport(*iface), nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := timeutil.RealClock{}
	log.Printf("handheld %s starting", version.String())

	imu, err := openSerial(cfg)
	if err != nil {
		return fmt.Errorf("failed to open IMU port: %w", err)
	}
	defer imu.Close()
	if err := imu.Initialise(); err != nil {
		return fmt.Errorf("failed to initialise IMU: %w", err)
	}

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := imu.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	tx, rx := eventbus.New()
	defer rx.Close()

	_, err = sensor.Spawn(func() (sensor.Driver, error) {
		return sensor.NewSerialDriver(imu), nil
	}, cfg.ClassifierConfig(), tx.Clone(), cfg.SensorConfig(), clock)
	if err != nil {
		return fmt.Errorf("invalid classifier config: %w", err)
	}

	netHandle := network.Spawn(networkTransport(), tx.Clone(), cfg.NetworkConfig(), clock)
	if creds, ok := cfg.Credentials(); ok && cfg.GetAutoConnect() {
		log.Printf("auto-connecting to %q", creds.SSID)
		if err := netHandle.Connect(creds); err != nil {
			log.Printf("auto-connect: %v", err)
		}
	}

	var screen io.Writer = os.Stdout
	if *headless {
		screen = io.Discard
	}
	machine := display.NewMachine(cfg.DisplayConfig(), display.NewTextRenderer(screen), clock)
	orch := orchestrator.New(rx, machine, cfg.OrchestratorConfig(), clock)
	orch.SetNetwork(netHandle)

	var journal *db.Journal
	if *dbFile != "" {
		store, err := db.NewDB(*dbFile)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
		journal, err = db.NewJournal(store, version.String(), db.DefaultJournalBuffer, clock)
		if err != nil {
			return fmt.Errorf("failed to start journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				log.Printf("journal close: %v", err)
			}
			log.Printf("journal closed: %d written, %d dropped, %d failed", journal.Written(), journal.Dropped(), journal.Failed())
		}()
		orch.SetJournal(journal)
	}

	srv := api.NewServer(orch, tx.Clone())
	defer srv.Close()
	srv.SetNetwork(netHandle)
	if journal != nil {
		srv.SetJournal(journal)
	}

	// the actors and the API hold their own clones from here on
	tx.Close()

	if *listen != "" {
		mux := http.NewServeMux()
		imu.AttachAdminRoutes(mux)
		if journal != nil {
			if err := journal.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		mux.Handle("/api/", srv.ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	err = orch.Run(ctx)
	log.Printf("orchestrator stopped after %d ticks", orch.Snapshot().Ticks)
	wg.Wait()
	return err
}
