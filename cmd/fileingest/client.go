package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/models"
)

type gatewayClient struct {
	baseURL string
	http    *http.Client
}

func newGatewayClient(baseURL string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   5 * time.Minute,
		},
	}
}

type apiError struct {
	Message string `json:"message"`
}

func (c *gatewayClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e apiError
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
			return fmt.Errorf("gateway returned %s", resp.Status)
		}
		return fmt.Errorf("gateway returned %s: %s", resp.Status, e.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *gatewayClient) upload(name, mimetype string, content io.Reader) (*models.UploadResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimetype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res models.UploadResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *gatewayClient) list() ([]*models.FileMetadata, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/files", nil)
	if err != nil {
		return nil, err
	}
	var res models.GetAllFilesReply
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

func defaultGatewayURL(cfg *config.Config) string {
	return "http://localhost:" + cfg.Gateway.Port
}

func newUploadCmd(cfg *config.Config) *cobra.Command {
	var gatewayURL, mimetype string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file through the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			if mimetype == "" {
				mimetype = mime.TypeByExtension(filepath.Ext(path))
			}
			if mimetype == "" {
				mimetype = "application/octet-stream"
			}

			res, err := newGatewayClient(gatewayURL).upload(filepath.Base(path), mimetype, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s)\n%s\n", filepath.Base(path), humanize.IBytes(uint64(info.Size())), res.FileURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway", defaultGatewayURL(cfg), "gateway base URL")
	cmd.Flags().StringVar(&mimetype, "type", "", "content type (guessed from the extension by default)")
	return cmd
}

func newListCmd(cfg *config.Config) *cobra.Command {
	var gatewayURL string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := newGatewayClient(gatewayURL).list()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tUPLOADED\tURL")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					f.ID, f.Filename, f.Mimetype,
					humanize.IBytes(uint64(f.Size)),
					humanize.Time(f.UploadDate),
					f.FileURL,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway", defaultGatewayURL(cfg), "gateway base URL")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}
