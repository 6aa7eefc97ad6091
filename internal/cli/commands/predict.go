package commands

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
)

type predictOptions struct {
	host    string
	port    int
	data    string
	timeout time.Duration
}

func newPredictCommand() *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:     "predict",
		Short:   "Send a JSON payload to a running service",
		Example: `  mlctl predict -H 127.0.0.1 -p 5000 -d data/payload.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			printSuccess(w, "Runs testing client")

			raw, err := os.ReadFile(opts.data)
			if err != nil {
				if os.IsNotExist(err) {
					return errors.NewNotFoundError("payload", opts.data)
				}
				return errors.WrapIO(err, "read payload")
			}
			printPlain(w, "Loads payload JSON from %s", opts.data)

			endpoint := "http://" + net.JoinHostPort(opts.host, strconv.Itoa(opts.port)) + "/predict"
			printInfo(w, "Connecting to %s", endpoint)

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			body, err := requestPrediction(ctx, http.DefaultClient, endpoint, raw)
			if err != nil {
				return err
			}
			printPlain(w, "%s", body)
			printSuccess(w, "Done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.host, "host", "H", "127.0.0.1", "service host")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 5000, "service port")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "data/payload.json", "JSON array of row objects")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

// requestPrediction sends payload as the payload query parameter of endpoint and
// returns the response body.
func requestPrediction(ctx context.Context, client *http.Client, endpoint string, payload []byte) (string, error) {
	if !jsoniter.Valid(payload) {
		return "", errors.NewValueError("predict", "payload is not valid JSON")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.NewInvalidConfigError("endpoint", endpoint, err.Error())
	}
	u.RawQuery = url.Values{"payload": {string(payload)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.WrapIO(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.WrapIO(err, "request prediction")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.WrapIO(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapIO(errors.Newf("unexpected status %s", resp.Status), "request prediction")
	}
	return string(body), nil
}
