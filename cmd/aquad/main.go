package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/mdouchement/aquad"
	"github.com/mdouchement/aquad/aquacomputer"
	showcurves "github.com/mdouchement/aquad/cmd/aquad/show_curves"
	showdevices "github.com/mdouchement/aquad/cmd/aquad/show_devices"
	showsensors "github.com/mdouchement/aquad/cmd/aquad/show_sensors"
	"github.com/mdouchement/aquad/hwmon/sensor"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
)

func main() {
	cmd := &cobra.Command{
		Use:     "aquad",
		Short:   "A controller for Aquacomputer watercooling hardware",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/aquad/aquad.yml", "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Start aquad with a dummy cooler")
	cmd.AddCommand(showcurves.Command())
	cmd.AddCommand(showdevices.Command())
	cmd.AddCommand(showsensors.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for aquad",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := aquad.Load(cpath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true, // Provided by journalctl
	})
	log := logger.WrapSlogHandler(h)
	ctx := logger.WithLogger(context.Background(), log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infof("aquad version %s", version)

	var cooler aquad.Cooler = aquad.NewDummyCooler()
	if !dummy {
		if err := aquacomputer.Init(); err != nil {
			return fmt.Errorf("hidapi: %w", err)
		}
		defer aquacomputer.Exit()

		device, err := openDevice(cfg)
		if err != nil {
			return err
		}
		defer device.Close()

		go func() {
			if err := device.Listen(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Telemetry listener stopped")
			}
		}()

		if err := device.WaitReady(5 * time.Second); err != nil {
			return fmt.Errorf("first report: %w", err)
		}

		{
			profile := device.Profile()
			log.Infof("Device `%s` on `%s`", profile.Name, device.Path())

			snap, err := device.Telemetry()
			if err != nil {
				return err
			}
			log.Infof("Hardware - SERIAL: %s - FIRMWARE: %d - POWER_CYCLES: %d - FAN_CHANNELS: %d",
				snap.SerialNumber(), snap.FirmwareVersion, snap.PowerCycles, profile.NumFans)
		}

		cooler = aquad.NewAquaCooler(device.Device)
	}

	collector, err := sensor.New()
	if err != nil {
		return err
	}
	defer collector.Close()

	temps, err := trimCollector(cfg, collector)
	if err != nil {
		return err
	}

	shaper, err := aquad.NewCurveShaper(cfg, temps)
	if err != nil {
		return err
	}

	controler, err := aquad.New(cfg, cooler, collector, shaper, 500*time.Millisecond)
	if err != nil {
		return err
	}
	controler.Launch(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	<-ctx.Done()
	cancel()

	log.Info("Gracefully shutdown")
	return nil
}

func openDevice(cfg aquad.Config) (*aquacomputer.HIDDevice, error) {
	if cfg.Device != "" {
		device, err := aquacomputer.OpenPath(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("aquacomputer: %w", err)
		}
		return device, nil
	}

	device, err := aquacomputer.OpenAuto()
	if err != nil {
		return nil, fmt.Errorf("aquacomputer: %w", err)
	}
	return device, nil
}

func trimCollector(cfg aquad.Config, collector *sensor.Collector) ([]sensor.Temperature, error) {
	temps, err := collector.Temperatures()
	if err != nil {
		return nil, fmt.Errorf("collect temperatures: %w", err)
	}
	exists := map[string]bool{}
	unwanted := map[string]bool{}
	for _, temp := range temps {
		exists[temp.Name] = true
		unwanted[temp.Name] = true
	}

	for _, fan := range cfg.FanSettings {
		for _, point := range fan.CurvePoints {
			for _, thresholds := range point {
				for name := range thresholds {
					if !exists[name] {
						return nil, fmt.Errorf("not found: %s", strconv.Quote(name))
					}

					delete(unwanted, name)
				}
			}
		}
	}

	collector.Drop(slices.Collect(maps.Keys(unwanted))...)
	return temps, nil
}
