package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/smazurov/camnode/internal/pixfmt"
	"github.com/spf13/cobra"
)

// CreateEncodingsCmd creates the encodings command.
func CreateEncodingsCmd() *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "encodings [PIXEL_FORMAT...]",
		Short: "List supported pixel formats",
		Long: `Prints the native pixel formats the node accepts (all of them, or only those named), ` +
			`the encoding each is published with, and the row length for the given width.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formats, err := selectFormats(args)
			if err != nil {
				return err
			}
			return writeEncodings(cmd.OutOrStdout(), formats, width)
		},
		ValidArgs: pixfmt.Names(),
	}
	cmd.Flags().IntVarP(&width, "width", "w", 640, "Image width used for the step column")
	return cmd
}

func selectFormats(names []string) ([]pixfmt.Format, error) {
	if len(names) == 0 {
		return pixfmt.All(), nil
	}
	formats := make([]pixfmt.Format, 0, len(names))
	for _, name := range names {
		f, ok := pixfmt.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown pixel format %q (known: %s)", name, strings.Join(pixfmt.Names(), ", "))
		}
		formats = append(formats, f)
	}
	return formats, nil
}

func writeEncodings(out io.Writer, formats []pixfmt.Format, width int) error {
	if width <= 0 {
		return fmt.Errorf("width must be positive, got %d", width)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PIXEL FORMAT\tENCODING\tBITS\tSTEP")
	for _, f := range formats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", f.Name, f.Encoding, f.BitsPerPixel, f.Step(width))
	}
	return tw.Flush()
}
