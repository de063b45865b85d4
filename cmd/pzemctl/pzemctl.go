package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/component-base/logs"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/port"
	"pzemgateway/pkg/pzem"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/transport"
	"pzemgateway/pkg/version/verflag"
)

// pzemctl is a provisioning tool for a single meter wired to one serial
// port: probe or change its address, poll it once, reset the energy counter
// and manage alarm thresholds or the DC shunt range.

var (
	flagDevice string
	flagModel  string
	flagAddr   uint8

	replyWait = 2 * time.Second
)

func main() {
	logs.InitLogs()
	defer logs.FlushLogs()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pzemctl",
		Short:        "Talk to a single PZEM energy meter over a serial line",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagDevice, "device", "d", "/dev/ttyUSB0", "serial device carrying the meter")
	root.PersistentFlags().StringVarP(&flagModel, "model", "m", "AC_V3", "meter model, AC_V3 or DC")
	root.PersistentFlags().Uint8VarP(&flagAddr, "addr", "a", modbus.AddrAny, "slave address to talk to, defaults to the catch-all")
	verflag.AddFlags(root.PersistentFlags())

	addressCmd := &cobra.Command{Use: "address", Short: "Read or change the MODBUS slave address"}
	addressCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Probe the configured slave address via the catch-all broadcast",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMeter(func(m *pzem.Meter) bool { return m.ReadHoldings() })
			},
		},
		&cobra.Command{
			Use:   "set <new-addr>",
			Short: "Assign a new slave address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				next, err := strconv.ParseUint(args[0], 0, 8)
				if err != nil {
					return err
				}
				return withMeter(func(m *pzem.Meter) bool { return m.SetSlaveAddr(uint8(next)) })
			},
		},
	)

	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Read the full metrics block once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMeter(func(m *pzem.Meter) bool { return m.Poll() })
		},
	}

	energyCmd := &cobra.Command{Use: "energy", Short: "Manage the cumulative energy counter"}
	energyCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero the energy counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMeter(func(m *pzem.Meter) bool { return m.ResetEnergyCounter() })
		},
	})

	thresholdCmd := &cobra.Command{Use: "threshold", Short: "Read or change the power alarm thresholds"}
	thresholdCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Read the configured thresholds",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMeter(func(m *pzem.Meter) bool { return m.ReadHoldings() })
			},
		},
		&cobra.Command{
			Use:   "set <value>",
			Short: "Set the alarm threshold (the high one on DC meters)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := strconv.ParseUint(args[0], 0, 16)
				if err != nil {
					return err
				}
				return withMeter(func(m *pzem.Meter) bool {
					if m.Model() == pzemruntime.ModelDC {
						return m.SetAlarmHighThreshold(uint16(value))
					}
					return m.SetAlarmThreshold(uint16(value))
				})
			},
		},
		&cobra.Command{
			Use:   "set-low <value>",
			Short: "Set the low alarm threshold (DC meters only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := strconv.ParseUint(args[0], 0, 16)
				if err != nil {
					return err
				}
				return withMeter(func(m *pzem.Meter) bool { return m.SetAlarmLowThreshold(uint16(value)) })
			},
		},
	)

	shuntCmd := &cobra.Command{Use: "shunt", Short: "Manage the DC current range"}
	shuntCmd.AddCommand(&cobra.Command{
		Use:   "set <range>",
		Short: "Select the shunt range: 100A, 50A, 200A or 300A",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shunt, ok := pzemruntime.StringToShunt[args[0]]
			if !ok {
				return fmt.Errorf("unknown shunt range %q", args[0])
			}
			return withMeter(func(m *pzem.Meter) bool { return m.SetShunt(shunt) })
		},
	})

	root.AddCommand(addressCmd, pollCmd, energyCmd, thresholdCmd, shuntCmd)
	return root
}

// withMeter wires a meter exclusively to the configured serial port, sends
// one request and pretty prints the reply.
func withMeter(send func(*pzem.Meter) bool) error {
	verflag.PrintAndExitIfRequested()

	model, ok := pzemruntime.StringToModel[flagModel]
	if !ok || model == pzemruntime.ModelNone {
		return fmt.Errorf("unknown meter model %q", flagModel)
	}

	cfg := transport.NewUartConfig(flagDevice)
	if model == pzemruntime.ModelDC {
		cfg = transport.NewUartConfigDC(flagDevice)
	}

	p, err := port.NewSerialPort(1, cfg, flagDevice)
	if err != nil {
		return fmt.Errorf("open %s: %w", flagDevice, err)
	}
	defer p.Stop()
	if !p.Start() {
		return fmt.Errorf("start port on %s", flagDevice)
	}

	m, err := pzem.NewMeter(1, model, flagAddr, "")
	if err != nil {
		return err
	}
	defer m.Close()
	m.AttachPort(p, false)

	done := make(chan *modbus.RxFrame, 1)
	m.AttachRxCallback(func(id uint8, rx *modbus.RxFrame) {
		select {
		case done <- &modbus.RxFrame{Raw: append([]byte{}, rx.Raw...), Valid: rx.Valid}:
		default:
		}
	})

	if !send(m) {
		return fmt.Errorf("request rejected, wrong model or full queue")
	}

	select {
	case rx := <-done:
		if !rx.Valid {
			return fmt.Errorf("reply failed the CRC check")
		}
		fmt.Print(pzem.PrettyPrint(rx, model))
	case <-time.After(replyWait):
		return fmt.Errorf("no reply within %s", replyWait)
	}
	return nil
}
