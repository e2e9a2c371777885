package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/orbtalk/pkg/audio/portaudio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List sound devices",
	Long: `List the sound devices PortAudio can open.

Use a device name with audio.input_device or audio.output_device in the
config file to select it; empty selects the system default.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		terminate, err := portaudio.Initialize()
		if err != nil {
			return err
		}
		defer func() { _ = terminate() }()

		devices, err := portaudio.Devices()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, "no sound devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Fprintln(out, d)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
