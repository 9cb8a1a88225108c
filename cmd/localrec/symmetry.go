package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/maozhouhe/localrec/internal/models"
	"github.com/maozhouhe/localrec/pkg/euler"
	"github.com/maozhouhe/localrec/pkg/symmetry"
)

func newSymmetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symmetry <spec>",
		Short: "Show the elements of a point group",
		Example: `
# Group order only
localrec symmetry D7

# Every rotation matrix with its Euler angles
localrec symmetry I2 --matrices
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			showMatrices, _ := cmd.Flags().GetBool("matrices")

			g, err := symmetry.MatrixFromSymmetry(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d elements\n", g.Spec(), g.Len())
			if !showMatrices {
				return nil
			}

			for i := 0; i < g.Len(); i++ {
				m := g.Matrix(i)
				o := euler.ToOrientation(m, models.Degrees)
				fmt.Fprintf(out, "\n#%d rot %.4f tilt %.4f psi %.4f\n", i+1, o.Rot, o.Tilt, o.Psi)
				fmt.Fprintf(out, "%.6f\n", mat.Formatted(m, mat.Squeeze()))
			}
			return nil
		},
	}
	cmd.Flags().Bool("matrices", false, "Print every rotation matrix")
	return cmd
}
