package showdevices

import (
	"context"
	"fmt"
	"time"

	"github.com/mdouchement/aquad/aquacomputer"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var telemetry bool

	cmd := &cobra.Command{
		Use:   "show-devices",
		Short: "Show the connected Aquacomputer devices",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if err := aquacomputer.Init(); err != nil {
				return fmt.Errorf("hidapi: %w", err)
			}
			defer aquacomputer.Exit()

			infos, err := aquacomputer.Discover()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No Aquacomputer device connected")
				return nil
			}

			for _, info := range infos {
				model, _ := aquacomputer.ModelForProduct(info.ProductID)
				fmt.Printf("%s (%04x:%04x) at %s\n", model, info.VendorID, info.ProductID, info.Path)

				if !telemetry {
					continue
				}

				if err := describe(info.Path); err != nil {
					fmt.Printf("  %v\n", err)
				}
			}

			return nil
		},
	}
	cmd.Flags().BoolVarP(&telemetry, "telemetry", "t", false, "Read a telemetry report from each device")

	return cmd
}

func describe(path string) error {
	device, err := aquacomputer.OpenPath(path)
	if err != nil {
		return err
	}
	defer device.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go device.Listen(ctx)

	if err := device.WaitReady(3 * time.Second); err != nil {
		return err
	}

	snap, err := device.Telemetry()
	if err != nil {
		return err
	}

	profile := device.Profile()
	fmt.Printf("  serial %s - firmware %d\n", snap.SerialNumber(), snap.FirmwareVersion)

	for i, t := range snap.Temps {
		if !t.Valid {
			fmt.Printf("  %-20s     n/c\n", profile.TempLabels[i])
			continue
		}
		fmt.Printf("  %-20s %6.2f°C\n", profile.TempLabels[i], float64(t.Value)/1000)
	}
	for i, f := range snap.Flows {
		fmt.Printf("  %-20s %6.1f l/h\n", profile.FlowLabels[i], float64(f.Value)/10)
	}
	for i, fan := range snap.Fans {
		fmt.Printf("  %-20s %4d RPM  %5.2fV  %6.2f%%\n",
			profile.SpeedLabels[i], fan.Speed, float64(fan.Voltage)/1000, float64(fan.Percent)/100)
	}
	for i, rail := range snap.Rails {
		fmt.Printf("  %-20s %6.2fV\n", profile.RailLabels[i], float64(rail)/1000)
	}

	return nil
}
