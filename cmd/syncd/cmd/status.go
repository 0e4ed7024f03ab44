package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/config"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	statusURL   string
	statusToken string
)

var ErrStatusAPI = errors.New("status api")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the transfers in flight on a running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		c := config.MustLoad(cfgFile)

		url := statusURL
		if url == "" {
			url = "http://" + c.GetKeyWithDefault(config.ListenAddrKey, "127.0.0.1:8080")
		}

		transfers, err := fetchTransfers(resty.New(), url, statusToken)
		if err != nil {
			log.Fatalf("status: %s", err)
		}

		printTransfers(os.Stdout, transfers)
	},
}

func fetchTransfers(client *resty.Client, baseURL, token string) ([]ft.TransferProgress, error) {
	var transfers []ft.TransferProgress

	resp, err := client.R().
		SetHeader("auth-token", token).
		SetResult(&transfers).
		Get(baseURL + "/api/transfers")
	if err != nil {
		return nil, errors.Join(ErrStatusAPI, err)
	}

	if resp.IsError() {
		return nil, errors.Join(ErrStatusAPI, fmt.Errorf("(HTTP Status: %d)- %s", resp.StatusCode(), resp.String()))
	}

	return transfers, nil
}

func printTransfers(w io.Writer, transfers []ft.TransferProgress) {
	if len(transfers) == 0 {
		_, _ = fmt.Fprintln(w, "No transfers in flight")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SESSION\tOWNER\tPATH\tHASH\tPROGRESS\tAGE")
	for _, t := range transfers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			t.SessionID, t.OwnerID, path.Join(t.Directory, t.Name), t.ContentHash, t.SyncedSize, t.DeclaredSize,
			time.Since(t.StartedAt).Round(time.Second))
	}
	_ = tw.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusURL, "url", "", "daemon base url (default http://$SYNCD_LISTEN_ADDR)")
	statusCmd.Flags().StringVar(&statusToken, "token", os.Getenv("SYNCD_TOKEN"), "auth token (default $SYNCD_TOKEN)")
}
