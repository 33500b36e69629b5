package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/identity-sync/modules/identity/domain/events"
	"github.com/iota-uz/identity-sync/modules/identity/domain/identifier"
)

type detectOutput struct {
	Change bool     `json:"change"`
	NewID  string   `json:"new_id,omitempty"`
	OldIDs []string `json:"old_ids,omitempty"`
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Classify an identity-changed event read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return withCode(exitUsage, err)
			}
			out, err := detect(raw)
			if err != nil {
				return withCode(exitValidation, err)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func detect(raw []byte) (detectOutput, error) {
	ev, err := events.DecodeIdentityChanged(raw)
	if err != nil {
		return detectOutput{}, err
	}
	change, err := identifier.Detect(ev.Identifiers)
	if err != nil {
		return detectOutput{}, err
	}
	if !change.IsChange() {
		return detectOutput{}, nil
	}
	return detectOutput{Change: true, NewID: change.NewID, OldIDs: change.OldIDs}, nil
}
