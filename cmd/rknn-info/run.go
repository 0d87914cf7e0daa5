package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/pure-rknn/internal/rkutil"
	"github.com/amikos-tech/pure-rknn/rknn"
)

type runOptions struct {
	output    uint32
	wantFloat bool
	count     int
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	runOpts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run MODEL",
		Short: "Run the model once on zero-filled inputs and print one output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if runOpts.count <= 0 {
				return fmt.Errorf("--count must be > 0, got %d", runOpts.count)
			}

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

			inputs, err := session.InputAttrs()
			if err != nil {
				return err
			}
			for _, attr := range inputs {
				zeros := make([]byte, attr.NElems)
				if err := session.SetInputBytes(attr.Index, zeros, false, rknn.TensorTypeUint8, rknn.TensorFormatNHWC); err != nil {
					return err
				}
			}

			if err := session.Run(); err != nil {
				return err
			}
			perf, err := session.PerfRun()
			if err != nil {
				return err
			}

			var (
				values string
				total  int
			)
			if runOpts.wantFloat {
				var head []float32
				head, total, err = readOutput[float32](session, runOpts.output, true, runOpts.count)
				values = formatValues(head, total, formatFloat)
			} else {
				values, total, err = readRawOutput(session, runOpts.output, runOpts.count)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run time: %s\n", perf.RunDuration)
			fmt.Fprintf(w, "Output %d (%d elements): %s\n", runOpts.output, total, values)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&runOpts.output, "output", 0, "output index to print")
	cmd.Flags().BoolVar(&runOpts.wantFloat, "float", true, "ask the runtime to convert the output to float32")
	cmd.Flags().IntVar(&runOpts.count, "count", 10, "number of leading values to print")
	return cmd
}

// readRawOutput formats an output in the element type the model declares for it.
func readRawOutput(session *rknn.Session, index uint32, count int) (string, int, error) {
	attrs, err := session.OutputAttrs()
	if err != nil {
		return "", 0, err
	}
	if int(index) >= len(attrs) {
		return "", 0, fmt.Errorf("output index %d out of range (model has %d outputs)", index, len(attrs))
	}

	switch attrs[index].Type {
	case rknn.TensorTypeFloat32:
		head, total, err := readOutput[float32](session, index, false, count)
		return formatValues(head, total, formatFloat), total, err
	case rknn.TensorTypeFloat16:
		head, total, err := readOutput[rknn.Float16](session, index, false, count)
		return formatHalfValues(head, total), total, err
	case rknn.TensorTypeBFloat16:
		head, total, err := readOutput[uint16](session, index, false, count)
		return formatValues(rknn.BFloat16ToFloat32(head), total, formatFloat), total, err
	case rknn.TensorTypeInt8:
		head, total, err := readOutput[int8](session, index, false, count)
		return formatValues(head, total, formatInt[int8]), total, err
	case rknn.TensorTypeInt16:
		head, total, err := readOutput[int16](session, index, false, count)
		return formatValues(head, total, formatInt[int16]), total, err
	case rknn.TensorTypeUint16:
		head, total, err := readOutput[uint16](session, index, false, count)
		return formatValues(head, total, formatUint[uint16]), total, err
	case rknn.TensorTypeInt32:
		head, total, err := readOutput[int32](session, index, false, count)
		return formatValues(head, total, formatInt[int32]), total, err
	case rknn.TensorTypeUint32:
		head, total, err := readOutput[uint32](session, index, false, count)
		return formatValues(head, total, formatUint[uint32]), total, err
	case rknn.TensorTypeInt64:
		head, total, err := readOutput[int64](session, index, false, count)
		return formatValues(head, total, formatInt[int64]), total, err
	default:
		head, total, err := readOutput[uint8](session, index, false, count)
		return formatValues(head, total, formatUint[uint8]), total, err
	}
}

// readOutput copies the first count values of one output and releases the batch.
func readOutput[T rknn.Element](session *rknn.Session, index uint32, wantFloat bool, count int) (_ []T, _ int, err error) {
	out, err := rknn.GetOutput[T](session, index, wantFloat)
	if err != nil {
		return nil, 0, err
	}
	defer func() { err = errorsJoin(err, rkutil.DestroyAll(rkutil.ReleaseFunc(out.Release))) }()

	data, err := out.Data()
	if err != nil {
		return nil, 0, err
	}
	head := make([]T, min(count, len(data)))
	copy(head, data)
	return head, len(data), nil
}

func formatHalfValues(head []rknn.Float16, total int) string {
	return formatValues(rknn.Float16ToFloat32(head), total, formatFloat)
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}

func formatInt[T int8 | int16 | int32 | int64](v T) string {
	return strconv.FormatInt(int64(v), 10)
}

func formatUint[T uint8 | uint16 | uint32](v T) string {
	return strconv.FormatUint(uint64(v), 10)
}

// formatValues renders head, marking the output as truncated when total exceeds it.
func formatValues[T any](head []T, total int, format func(T) string) string {
	parts := make([]string, len(head))
	for i, v := range head {
		parts[i] = format(v)
	}
	s := "[" + strings.Join(parts, " ")
	if len(head) < total {
		s += " ..."
	}
	return s + "]"
}

func errorsJoin(err error, more error) error {
	if more == nil {
		return err
	}
	return errors.Join(err, more)
}
