package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/amikos-tech/pure-rknn/internal/rkutil"
	"github.com/amikos-tech/pure-rknn/rknn"
)

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL",
		Short: "Show runtime versions and model input/output attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			teardown, err := opts.initRuntime()
			if err != nil {
				return err
			}
			defer func() { err = errorsJoin(err, teardown()) }()

			session, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer func() { err = errorsJoin(err, rkutil.DestroyAll(session)) }()

			sdk, err := session.SDKVersion()
			if err != nil {
				return err
			}
			info, err := session.ModelInfo()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "API version:    %s\n", sdk.APIVersion)
			fmt.Fprintf(w, "Driver version: %s\n", sdk.DriverVersion)
			fmt.Fprintf(w, "Inputs: %d  Outputs: %d\n\n", info.IONum.NInput, info.IONum.NOutput)

			fmt.Fprintln(w, "INPUTS")
			renderAttrTable(w, info.InputAttrs)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "OUTPUTS")
			renderAttrTable(w, info.OutputAttrs)
			return nil
		},
	}
}

func renderAttrTable(w io.Writer, attrs []rknn.TensorAttr) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"INDEX", "NAME", "DIMS", "TYPE", "FORMAT", "QUANT", "ZP", "SCALE", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(attrRows(attrs))
	table.Render()
}

func attrRows(attrs []rknn.TensorAttr) [][]string {
	rows := make([][]string, 0, len(attrs))
	for _, a := range attrs {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(a.Index), 10),
			a.Name,
			formatDims(a.Dims),
			a.Type.String(),
			a.Format.String(),
			a.QuantType.String(),
			strconv.FormatInt(int64(a.ZP), 10),
			strconv.FormatFloat(float64(a.Scale), 'g', 6, 32),
			strconv.FormatUint(uint64(a.Size), 10),
		})
	}
	return rows
}

func formatDims(dims []uint32) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatUint(uint64(d), 10)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
