package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/norasector/uartscope/pkg/frame"
	"github.com/norasector/uartscope/pkg/uartscope/config"
	"github.com/norasector/uartscope/pkg/uartscope/device/serial"
	"github.com/norasector/uartscope/pkg/uartscope/output"
)

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PORT\tDESCRIPTION\tUSB ID\tSERIAL")
			for _, p := range ports {
				usb := "-"
				if p.IsUSB {
					usb = p.VID + ":" + p.PID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Description, usb, p.SerialNumber)
			}
			return w.Flush()
		},
	}
}

func newLayoutsCommand() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "layouts [name...]",
		Short: "Show the built-in frame layouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = frame.BuiltinNames()
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				l, err := frame.Builtin(name)
				if err != nil {
					return err
				}
				if !asYAML {
					fmt.Fprintln(out, l.String())
					continue
				}
				lc := config.FromLayout(l)
				b, err := yaml.Marshal(map[string]config.LayoutConfig{"frame": lc})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "# %s\n%s\n", name, b)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as a config file frame block")
	return cmd
}

func newRenderCommand() *cobra.Command {
	var x, y, out string
	cmd := &cobra.Command{
		Use:   "render <file.csv>",
		Short: "Plot one column of a recorded CSV file against another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := output.LoadTable(args[0])
			if err != nil {
				return err
			}
			if y == "" {
				if len(tbl.Header) < 3 {
					return fmt.Errorf("%s has no value columns", args[0])
				}
				y = tbl.Header[2]
			}
			if out == "" {
				out = args[0] + ".png"
			}
			png, err := output.RenderTable(tbl, x, y)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return err
			}
			log.Info().Str("file", out).Int("rows", len(tbl.Rows)).Msg("rendered")
			return nil
		},
	}
	cmd.Flags().StringVarP(&x, "x", "x", output.ColumnIndex, "column for the horizontal axis")
	cmd.Flags().StringVarP(&y, "y", "y", "", "column to plot (default: first field column)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG (default: <file.csv>.png)")
	return cmd
}
