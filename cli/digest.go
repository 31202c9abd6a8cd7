package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/spf13/cobra"
)

type digestOutput struct {
	Digest string `json:"digest"`
	Sender string `json:"sender"`
	Size   int    `json:"size"`
}

// newDigestCmd decodes an envelope offline, without a store or node.
func newDigestCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "digest <base64-tx-bytes>",
		Short: "Print the digest and sender of a transaction envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			out := digestOutput{
				Digest: decoded.Digest.String(),
				Sender: decoded.Sender.String(),
				Size:   len(decoded.Raw),
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "digest: %s\nsender: %s\nsize:   %d bytes\n", out.Digest, out.Sender, out.Size)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}
