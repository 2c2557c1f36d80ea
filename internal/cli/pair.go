package cli

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mrarosh/Pear-code/pkg/types"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// pairTimeout stays above the server's overall pairing deadline.
const pairTimeout = 40 * time.Second

func (a *app) newPairCmd() *cobra.Command {
	var showQR bool

	cmd := &cobra.Command{
		Use:   "pair <number>",
		Short: "Request a pairing code for a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := requestCode(cmd, a.serverURL(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Code:    %s\n", resp.Code)
			fmt.Fprintf(out, "Number:  %s\n", resp.Number)
			fmt.Fprintf(out, "Session: %s\n", resp.SessionID)
			if resp.IsDemo {
				fmt.Fprintf(out, "Demo:    yes (%s)\n", resp.Reason)
			}
			if showQR {
				qr, err := qrcode.New(resp.Code, qrcode.Medium)
				if err != nil {
					return fmt.Errorf("render qr: %w", err)
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, qr.ToSmallString(false))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "also print the code as a terminal QR code")
	return cmd
}

func requestCode(cmd *cobra.Command, server, number string) (*types.CodeResponse, error) {
	client := resty.New().SetTimeout(pairTimeout)

	var (
		result  types.CodeResponse
		failure types.ErrorResponse
	)
	resp, err := client.R().
		SetContext(cmd.Context()).
		SetQueryParam("number", number).
		SetResult(&result).
		SetError(&failure).
		Get(server + "/code")
	if err != nil {
		return nil, fmt.Errorf("request code: %w", err)
	}
	if resp.IsError() {
		if failure.Code != "" {
			return nil, fmt.Errorf("pairing failed (%d %s): %s", resp.StatusCode(), failure.Code, failure.Error)
		}
		return nil, fmt.Errorf("pairing failed: status %d", resp.StatusCode())
	}
	return &result, nil
}
