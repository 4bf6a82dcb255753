package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

var (
	keyModel   string
	keyVoice   string
	keyExpires int
)

var ephemeralKeyCmd = &cobra.Command{
	Use:   "ephemeral-key",
	Short: "Mint a realtime client secret",
	Long:  "Request a short-lived realtime voice session key and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := initServices(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer services.Close()

		key, err := services.RealtimeService.CreateEphemeralKey(cmd.Context(), service.EphemeralKeyRequest{
			Model:               keyModel,
			Voice:               keyVoice,
			ExpiresAfterSeconds: keyExpires,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dto.EphemeralKeyResponse{
			APIKey:    key.APIKey,
			ExpiresAt: key.ExpiresAt,
			Session:   key.Session,
		})
	},
}

func init() {
	rootCmd.AddCommand(ephemeralKeyCmd)

	ephemeralKeyCmd.Flags().StringVar(&keyModel, "model", service.DefaultRealtimeModel, "Realtime model")
	ephemeralKeyCmd.Flags().StringVar(&keyVoice, "voice", service.DefaultRealtimeVoice, "Output voice")
	ephemeralKeyCmd.Flags().IntVar(&keyExpires, "expires", service.DefaultExpiresAfterSeconds, "Seconds until the key expires (10-3600)")
}
