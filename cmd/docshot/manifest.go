package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docshot/pkg/metadata"
	"docshot/pkg/ui"
)

var manifestDryRun bool

// manifestCmd represents the manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect and tidy capture manifests",
	Long: `Inspect and tidy the JSON manifests written next to output images when
output.write_manifest (or --manifest) is enabled.`,
}

// manifestShowCmd represents the manifest show command
var manifestShowCmd = &cobra.Command{
	Use:     "show <image>",
	Short:   "Show the manifest of an output image",
	Example: `  docshot manifest show page.png`,
	Args:    cobra.ExactArgs(1),
	RunE:    runManifestShow,
}

// manifestCleanCmd represents the manifest clean command
var manifestCleanCmd = &cobra.Command{
	Use:   "clean [directory]",
	Short: "Remove manifests whose output image was deleted",
	Long: `Walk a directory (default: the current one) and remove manifests whose
output image no longer exists.

Only files named after an image with a supported extension (page.png.json)
that hold a docshot manifest are removed. Other JSON files are left alone.`,
	Example: `  # See what would be removed
  docshot manifest clean shots --dry-run

  docshot manifest clean shots`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifestClean,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestCleanCmd)
	manifestCleanCmd.Flags().BoolVar(&manifestDryRun, "dry-run", false, "list orphaned manifests without removing them")
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	output := args[0]
	if !metadata.Exists(output) {
		return fmt.Errorf("no manifest found for %s (expected %s)", output, metadata.Path(output))
	}
	m, err := metadata.Load(output)
	if err != nil {
		return err
	}

	ui.PrintHighlight("Manifest " + metadata.Path(output))
	for _, line := range manifestLines(m) {
		ui.PrintInfo(line[0], line[1])
	}
	return nil
}

// manifestLines formats a manifest as label/value pairs
func manifestLines(m *metadata.Manifest) [][2]string {
	overW, overH := m.Overscan()
	lines := [][2]string{
		{"Run", m.RunID},
		{"Output", m.OutputPath},
		{"Image", fmt.Sprintf("%dx%d", m.Width, m.Height)},
		{"Page", m.Page.String()},
		{"Grid", fmt.Sprintf("%d columns x %d rows, %d tiles", m.Columns, m.Rows, len(m.Tiles))},
		{"Overscan", fmt.Sprintf("%dx%d", overW, overH)},
		{"Scrolling", fmt.Sprintf("%t", m.ScrollEnabled)},
		{"Stitch mode", m.StitchMode},
		{"Settle delay", m.SettleDelay.String()},
		{"Started", m.StartedAt.Format(time.RFC3339)},
	}
	if d := m.Duration(); d > 0 {
		lines = append(lines, [2]string{"Duration", d.Round(time.Millisecond).String()})
	}
	return lines
}

func runManifestClean(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	removed, err := metadata.CleanOrphaned(dir, manifestDryRun)
	if err != nil {
		return err
	}

	verb := "Removed"
	if manifestDryRun {
		verb = "Would remove"
	}
	for _, path := range removed {
		ui.PrintInfo(verb, path)
	}
	if len(removed) == 0 {
		ui.PrintSuccess("No orphaned manifests in " + dir)
		return nil
	}
	ui.PrintSuccess(fmt.Sprintf("%s %d orphaned manifest(s)", verb, len(removed)))
	return nil
}
