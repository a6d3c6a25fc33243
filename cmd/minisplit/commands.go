package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-minisplit/internal/audit"
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/logging"
)

// errDeviceUnreachable is returned when a one-shot command cannot reach the device.
var errDeviceUnreachable = errors.New("device unreachable")

// cliSession is a device stack for one command. Logs go to stderr so stdout
// stays machine-readable.
type cliSession struct {
	dev *device
	db  *database.DB
	log *logging.Logger
}

func openSession(cmd *cobra.Command, opts *options) (*cliSession, error) {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)

	s := &cliSession{log: log}
	var recorder tuya.CommandRecorder
	if cfg.Database.Enabled {
		s.db, err = openDatabase(cmd.Context(), cfg)
		if err != nil {
			return nil, err
		}
		recorder = audit.NewRecorder(audit.NewSQLiteRepository(s.db.DB))
	}

	s.dev, err = newDevice(cfg, log, recorder)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the device session and the database.
func (s *cliSession) Close() {
	if s.dev != nil {
		if err := s.dev.manager.Close(); err != nil {
			s.log.Warn("error closing device session", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("error closing database", "error", err)
		}
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current device status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.dev.service.QueryStatus(cmd.Context(), refresh)
			if err := printJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if !st.Online {
				return fmt.Errorf("%w: %s", errDeviceUnreachable, s.dev.service.Identity().Address)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the status cache")
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> <value>",
		Short: "Send one command, e.g. send mode heat or send target_temp 72",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.dev.service.Apply(cmd.Context(), tuya.SourceCLI, args[0], parseValue(args[1]))
			if err != nil {
				return describeCommandError(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newRawCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <dp> <json>",
		Short: "Write a device-native value to any datapoint",
		Long: `raw writes a value to a datapoint without translation, for probing
datapoints the table does not describe. The value is parsed as JSON; a
bare word is sent as a string.

  minisplit raw 101 true
  minisplit raw 105 '"standard"'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("dp must be an integer: %q", args[0])
			}

			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.dev.service.WriteRaw(cmd.Context(), tuya.SourceCLI, index, parseValue(args[1]))
			if err != nil {
				return describeCommandError(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newDatapointsCmd(_ *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "datapoints",
		Short: "List the datapoint table",
		Long: `datapoints prints the datapoint table without contacting the device.
It uses --file, then $MINISPLIT_DATAPOINTS_FILE, then the built-in table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = os.Getenv("MINISPLIT_DATAPOINTS_FILE")
			}
			table := tuya.DefaultTable()
			if file != "" {
				t, err := tuya.LoadTable(file)
				if err != nil {
					return err
				}
				table = t
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "datapoint table YAML")
	return cmd
}

// parseValue decodes a command-line value as JSON, falling back to the raw
// string so "heat" and heat are both accepted.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// describeCommandError adds the accepted values to enumeration rejections.
func describeCommandError(err error) error {
	var ve *tuya.ValidationError
	if errors.As(err, &ve) && len(ve.Valid) > 0 {
		return fmt.Errorf("%w (valid: %s)", err, strings.Join(ve.Valid, ", "))
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, table *tuya.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DP\tNAME\tTYPE\tACCESS\tDETAILS")
	for _, d := range table.Descriptors() {
		access := "rw"
		if d.ReadOnly {
			access = "ro"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.Index, d.Name, d.Type, access, descriptorDetails(d))
	}
	return tw.Flush()
}

func descriptorDetails(d tuya.Descriptor) string {
	var parts []string
	if d.IsTemperature() {
		parts = append(parts, "unit="+string(d.Unit))
	}
	if d.Scale > 1 {
		parts = append(parts, fmt.Sprintf("scale=%d", d.Scale))
	}
	if d.Range != nil {
		parts = append(parts, fmt.Sprintf("range=%d..%d", d.Range.Min, d.Range.Max))
	}
	if len(d.Values) > 0 {
		parts = append(parts, "values="+strings.Join(d.Values, "|"))
	}
	return strings.Join(parts, " ")
}
